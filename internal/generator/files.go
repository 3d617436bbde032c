package generator

import (
	"repowiki/internal/lineindex"
	"repowiki/internal/wiki"
)

// FileSet indexes the file contents fetched during one run by path.
type FileSet map[string]wiki.RepoFileContent

func NewFileSet(files ...[]wiki.RepoFileContent) FileSet {
	fs := make(FileSet)
	fs.Add(files...)
	return fs
}

func (fs FileSet) Add(files ...[]wiki.RepoFileContent) {
	for _, batch := range files {
		for _, f := range batch {
			fs[f.Path] = f
		}
	}
}

// LineCount returns the true line count of path, or false if it was never fetched.
func (fs FileSet) LineCount(path string) (int, bool) {
	f, ok := fs[path]
	if !ok {
		return 0, false
	}
	return lineindex.CountLines(f.Content), true
}

// LineCounts is the ground truth the citation linker validates against.
func (fs FileSet) LineCounts() map[string]int {
	out := make(map[string]int, len(fs))
	for p, f := range fs {
		out[p] = lineindex.CountLines(f.Content)
	}
	return out
}

// Present returns the paths from want that are in the set, in want order.
func (fs FileSet) Present(want []string) []string {
	out := make([]string, 0, len(want))
	for _, p := range want {
		if _, ok := fs[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
