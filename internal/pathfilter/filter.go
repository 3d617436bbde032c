// Package pathfilter drops low-signal paths (build output, vendored code, tests,
// lockfiles, binaries) from a repository tree listing.
package pathfilter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var deniedSegments = toSet(
	".git", ".svn", ".hg",
	"node_modules", "vendor", "bower_components", "third_party",
	"dist", "build", "out", "target", "coverage", ".next", ".nuxt", ".cache", ".gradle",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache", ".pytest_cache",
	".idea", ".vscode",
	"test", "tests", "__tests__", "testdata", "fixtures", "__mocks__",
)

var lockfiles = toSet(
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb", "npm-shrinkwrap.json",
	"Cargo.lock", "Gemfile.lock", "poetry.lock", "Pipfile.lock", "composer.lock",
	"go.sum", "mix.lock", "pubspec.lock", "packages.lock.json", "flake.lock",
)

var binaryExts = toSet(
	// images
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tif", ".tiff", ".psd", ".svg",
	// fonts
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	// archives
	".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar", ".jar", ".war",
	// media
	".mp3", ".mp4", ".wav", ".ogg", ".flac", ".mov", ".avi", ".mkv", ".webm",
	// executables and objects
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".obj", ".class", ".pyc", ".pyo", ".wasm", ".bin",
	// documents and data blobs
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".db", ".sqlite", ".sqlite3",
	// generated web artifacts
	".map",
)

var compoundExts = []string{".min.js", ".min.css", ".bundle.js", ".chunk.js"}

// Filter removes low-value paths. Zero value applies the fixed rules only.
type Filter struct {
	// Exclude holds extra doublestar globs (e.g. "docs/**", "**/*.generated.go").
	Exclude []string
}

// Filter applies the fixed deny rules plus f.Exclude and returns unique paths
// in first-seen order.
func (f Filter) Filter(rawPaths []string) []string {
	out := make([]string, 0, len(rawPaths))
	seen := make(map[string]struct{}, len(rawPaths))
	for _, p := range rawPaths {
		if !Keep(p) || f.excluded(p) {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Keep reports whether a single path survives the fixed rules.
func Keep(p string) bool {
	if strings.TrimSpace(p) == "" || strings.HasSuffix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if _, denied := deniedSegments[seg]; denied {
			return false
		}
	}
	base := path.Base(p)
	if _, ok := lockfiles[base]; ok {
		return false
	}
	lower := strings.ToLower(base)
	if _, ok := binaryExts[path.Ext(lower)]; ok {
		return false
	}
	for _, ext := range compoundExts {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func (f Filter) excluded(p string) bool {
	for _, pattern := range f.Exclude {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
	}
	return false
}

func toSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}
