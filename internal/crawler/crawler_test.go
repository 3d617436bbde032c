package crawler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestCrawler_LocalCheckout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "# shop\n")
	writeFile(t, root, "src/cart/cart.go", "package cart\n")
	writeFile(t, root, "node_modules/left-pad/index.js", "module.exports = 1\n")
	writeFile(t, root, "big.txt", strings.Repeat("x", 64))

	c := NewCrawler(root)
	c.MaxFileBytes = 32
	ctx := context.Background()

	t.Run("Tree skips ignored directories", func(t *testing.T) {
		files, err := c.Tree(ctx, "acme", "shop", "")
		require.NoError(t, err)

		var paths []string
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		sort.Strings(paths)
		assert.Equal(t, []string{"README.md", "big.txt", "src/cart/cart.go"}, paths)
	})

	t.Run("Contents skips oversize, missing and escaping paths", func(t *testing.T) {
		got, err := c.Contents(ctx, "acme", "shop", "", []string{"src/cart/cart.go", "big.txt", "gone.go", "../etc/passwd", "src"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "src/cart/cart.go", got[0].Path)
		assert.Equal(t, "package cart\n", got[0].Content)
	})

	t.Run("HeadSHA outside git", func(t *testing.T) {
		sha, err := c.HeadSHA(ctx, "acme", "shop", "")
		require.NoError(t, err)
		assert.Equal(t, "local", sha)
	})

	t.Run("Dirty outside git", func(t *testing.T) {
		dirty, err := c.Dirty(ctx)
		require.NoError(t, err)
		assert.False(t, dirty)
	})
}
