package pathfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeep(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "source file", path: "src/auth/login.ts", want: true},
		{name: "readme", path: "README.md", want: true},
		{name: "empty", path: "", want: false},
		{name: "directory marker", path: "src/auth/", want: false},
		{name: "node_modules", path: "web/node_modules/react/index.js", want: false},
		{name: "vendor", path: "vendor/github.com/x/y.go", want: false},
		{name: "tests dir", path: "pkg/tests/helper.py", want: false},
		{name: "git dir", path: ".git/config", want: false},
		{name: "lockfile", path: "web/package-lock.json", want: false},
		{name: "go.sum", path: "go.sum", want: false},
		{name: "image upper case", path: "assets/Logo.PNG", want: false},
		{name: "minified js", path: "public/app.min.js", want: false},
		{name: "executable", path: "bin/tool.exe", want: false},
		{name: "segment match is exact", path: "src/testing/util.go", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keep(tt.path))
		})
	}
}

func TestFilter_DedupesAndPreservesOrder(t *testing.T) {
	in := []string{"b.go", "a.go", "b.go", "dist/x.js", "a.go", "c.go"}
	assert.Equal(t, []string{"b.go", "a.go", "c.go"}, Filter{}.Filter(in))
}

func TestFilter_Idempotent(t *testing.T) {
	in := []string{
		"src/main.go", "src/main.go", "build/out.js", "docs/guide.md", "yarn.lock",
		"", "lib/", "img/a.gif", "cmd/app/main.go", "node_modules/x/index.js",
	}
	once := Filter{}.Filter(in)
	assert.Equal(t, once, Filter{}.Filter(once))
}

func TestFilter_ExcludeGlobs(t *testing.T) {
	f := Filter{Exclude: []string{"docs/**", "**/*_gen.go"}}
	got := f.Filter([]string{"docs/a/b.md", "pkg/model_gen.go", "pkg/model.go"})
	assert.Equal(t, []string{"pkg/model.go"}, got)
}

func TestFilter_EmptyInput(t *testing.T) {
	assert.Empty(t, Filter{}.Filter(nil))
}
