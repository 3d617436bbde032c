package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemote(t *testing.T) {
	tests := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"git@github.com:acme/shop.git", "acme", "shop", true},
		{"https://github.com/acme/shop.git", "acme", "shop", true},
		{"https://github.com/acme/shop", "acme", "shop", true},
		{"https://token@github.com/acme/shop/", "acme", "shop", true},
		{"ssh://git@github.com/acme/my.repo.git", "acme", "my.repo", true},
		{"/srv/git/shop.git", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, ok := ParseRemote(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestIsDirty(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	_, err := Run(ctx, dir, "init", "-q")
	require.NoError(t, err)

	dirty, err := IsDirty(ctx, dir)
	require.NoError(t, err)
	assert.False(t, dirty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	dirty, err = IsDirty(ctx, dir)
	require.NoError(t, err)
	assert.True(t, dirty)
}
