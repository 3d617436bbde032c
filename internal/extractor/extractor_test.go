package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutline_Go(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "checkout.go"))
	require.NoError(t, err)

	symbols, err := Outline(context.Background(), "testdata/checkout.go", src)
	require.NoError(t, err)

	tests := []Symbol{
		{Name: "Item", Kind: "type", StartLine: 12, EndLine: 16},
		{Name: "Cart", Kind: "type", StartLine: 20, EndLine: 22},
		{Name: "Gateway", Kind: "type", StartLine: 25, EndLine: 28},
		{Name: "Total", Kind: "method", StartLine: 32, EndLine: 38},
		{Name: "Pay", Kind: "func", StartLine: 41, EndLine: 46},
	}
	// Vars, consts and interface methods are not outlined.
	assert.Equal(t, tests, symbols)
}

func TestOutline_Python(t *testing.T) {
	src := []byte("class Cart:\n    def add(self, item):\n        return item\n\ndef checkout(cart):\n    pass\n")
	symbols, err := Outline(context.Background(), "shop/cart.py", src)
	require.NoError(t, err)
	require.Len(t, symbols, 3)
	assert.Equal(t, Symbol{Name: "Cart", Kind: "class", StartLine: 1, EndLine: 3}, symbols[0])
	assert.Equal(t, "add", symbols[1].Name)
	assert.Equal(t, "checkout", symbols[2].Name)
}

func TestOutline_UnsupportedLanguage(t *testing.T) {
	symbols, err := Outline(context.Background(), "README.md", []byte("# hi"))
	require.NoError(t, err)
	assert.Nil(t, symbols)
	assert.False(t, Supported("README.md"))
	assert.True(t, Supported("src/app.tsx"))
}

func TestFormat_Limit(t *testing.T) {
	symbols := []Symbol{
		{Name: "A", Kind: "func", StartLine: 1, EndLine: 3},
		{Name: "B", Kind: "type", StartLine: 5, EndLine: 9},
	}
	assert.Equal(t, "- func A (lines 1-3)", Format(symbols, 1))
	assert.Equal(t, "- func A (lines 1-3)\n- type B (lines 5-9)", Format(symbols, 0))
}
