// Package crawler serves a local checkout as a repository source, so the
// pipeline can analyze a working copy without the hosting API.
package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"repowiki/internal/git"
	"repowiki/internal/wiki"
)

const DefaultMaxFileBytes = 200 * 1024

// Crawler lists and reads files under Root. Owner and repo arguments are
// ignored; they only matter for cache keys and permalinks.
type Crawler struct {
	Root         string
	MaxFileBytes int64
	ignored      []string
}

func NewCrawler(root string) *Crawler {
	return &Crawler{
		Root:         root,
		MaxFileBytes: DefaultMaxFileBytes,
		ignored:      []string{".git", "node_modules", "vendor"},
	}
}

// HeadSHA resolves ref in the checkout. Outside a git repository it returns
// "local" so permalinks still render.
func (c *Crawler) HeadSHA(ctx context.Context, _, _, ref string) (string, error) {
	if _, err := os.Stat(filepath.Join(c.Root, ".git")); err != nil {
		return "local", nil
	}
	sha, err := git.ResolveSHA(ctx, c.Root, ref)
	if err != nil {
		return "", wiki.Wrap(wiki.CodeInvalidRepository, err, "cannot resolve ref", "root", c.Root, "ref", ref)
	}
	return sha, nil
}

// Dirty reports whether the checkout has uncommitted changes, in which case
// the files read do not match the resolved SHA. Outside git it is false.
func (c *Crawler) Dirty(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(c.Root, ".git")); err != nil {
		return false, nil
	}
	return git.IsDirty(ctx, c.Root)
}

// Tree walks Root and returns every regular file with a slash-separated path.
func (c *Crawler) Tree(ctx context.Context, _, _, _ string) ([]wiki.RepoFile, error) {
	var files []wiki.RepoFile
	err := filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			for _, ign := range c.ignored {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(c.Root, path)
		if err != nil {
			return err
		}
		files = append(files, wiki.RepoFile{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, wiki.Wrap(wiki.CodeFetchFailed, err, "walk local tree", "root", c.Root)
	}
	return files, nil
}

// Contents reads paths from disk, skipping missing, non-regular and oversize files.
func (c *Crawler) Contents(ctx context.Context, _, _, _ string, paths []string) ([]wiki.RepoFileContent, error) {
	out := make([]wiki.RepoFileContent, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full, err := c.resolve(p)
		if err != nil {
			continue
		}
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if c.MaxFileBytes > 0 && info.Size() > c.MaxFileBytes {
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, wiki.Wrap(wiki.CodeFetchFailed, err, "read local file", "path", p)
		}
		out = append(out, wiki.RepoFileContent{Path: p, Content: string(data), Size: info.Size()})
	}
	return out, nil
}

// resolve rejects paths that escape Root.
func (c *Crawler) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root", p)
	}
	return filepath.Join(c.Root, clean), nil
}
