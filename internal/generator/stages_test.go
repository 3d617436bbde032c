package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repowiki/internal/llm"
	"repowiki/internal/llm/llmtest"
	"repowiki/internal/wiki"
)

func lines(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(parts, "\n")
}

func newEngine(fake *llmtest.Fake) *Engine {
	return NewEngine(fake, Options{}, nil)
}

func subsystem(id, name string) wiki.Subsystem {
	return wiki.Subsystem{ID: id, Name: name, RelevantPaths: []string{"src/a.go"}}
}

func TestSelectSignalPaths_DropsHallucinations(t *testing.T) {
	fake := llmtest.Static([]string{"src/a.go", "ghost.go", " src/a.go ", "./README.md"})
	got, err := newEngine(fake).SelectSignalPaths(context.Background(), "acme/shop", []string{"src/a.go", "README.md", "src/b.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.go", "README.md"}, got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.TypeArray, calls[0].Schema.Type)
	assert.Contains(t, calls[0].Prompt, "src/b.go")
}

func TestSelectSignalPaths_Errors(t *testing.T) {
	_, err := newEngine(llmtest.Static([]string{})).SelectSignalPaths(context.Background(), "acme/shop", nil)
	assert.ErrorIs(t, err, wiki.ErrEmptyFileTree)

	_, err = newEngine(llmtest.Static([]string{"nope.go"})).SelectSignalPaths(context.Background(), "acme/shop", []string{"a.go"})
	assert.ErrorIs(t, err, wiki.ErrInvalidSignalPaths)

	failing := &llmtest.Fake{Respond: func(string, *llm.Schema) (any, error) { return nil, errors.New("503") }}
	_, err = newEngine(failing).SelectSignalPaths(context.Background(), "acme/shop", []string{"a.go"})
	assert.ErrorIs(t, err, wiki.ErrGenerationFailed)

	_, err = newEngine(llmtest.Static("not json at all")).SelectSignalPaths(context.Background(), "acme/shop", []string{"a.go"})
	assert.ErrorIs(t, err, wiki.ErrInvalidGenerationOutput)
}

func TestValidateSignalPaths_Cap(t *testing.T) {
	got := ValidateSignalPaths([]string{"a", "b", "c"}, []string{"a", "b", "c"}, 2)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestValidateSubsystems_ForbiddenNameFailsWholeList(t *testing.T) {
	list := wiki.SubsystemList{Subsystems: []wiki.Subsystem{
		subsystem("checkout", "Checkout"),
		subsystem("search", "Product Search"),
		subsystem("api", " API "),
		subsystem("accounts", "Accounts"),
	}}
	_, err := ValidateSubsystems(list, []string{"src/a.go"})
	require.Error(t, err)
	assert.ErrorIs(t, err, wiki.ErrInvalidSubsystemNames)
	assert.Equal(t, wiki.CodeInvalidSubsystemNames, wiki.CodeOf(err))
}

func TestValidateSubsystems_Normalizes(t *testing.T) {
	list := wiki.SubsystemList{
		ProductSummary: "  A shop.  ",
		Subsystems: []wiki.Subsystem{
			{ID: "Checkout Flow", Name: "Checkout Flow", RelevantPaths: []string{"src/pay.go", "ghost.go"}},
			{ID: "", Name: "Product Search", EntryPoints: []string{"src/search.go", "src/search.go"}},
			{ID: "acct", Name: "Accounts", ExternalServices: []string{"Stripe", " stripe ", ""}},
		},
	}
	got, err := ValidateSubsystems(list, []string{"src/pay.go", "src/search.go"})
	require.NoError(t, err)

	assert.Equal(t, "A shop.", got.ProductSummary)
	assert.Equal(t, "checkout-flow", got.Subsystems[0].ID)
	assert.Equal(t, []string{"src/pay.go"}, got.Subsystems[0].RelevantPaths)
	assert.Equal(t, []string{"src/pay.go"}, got.Subsystems[0].EntryPoints)
	assert.Equal(t, "product-search", got.Subsystems[1].ID)
	assert.Equal(t, []string{"src/search.go"}, got.Subsystems[1].EntryPoints)
	assert.Equal(t, []string{"Stripe"}, got.Subsystems[2].ExternalServices)
}

func TestValidateSubsystems_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		subs []wiki.Subsystem
	}{
		{"too few", []wiki.Subsystem{subsystem("a", "Alpha"), subsystem("b", "Beta")}},
		{"duplicate id", []wiki.Subsystem{subsystem("a", "Alpha"), subsystem("A", "Beta"), subsystem("c", "Gamma")}},
		{"empty name", []wiki.Subsystem{subsystem("a", "Alpha"), subsystem("b", " "), subsystem("c", "Gamma")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSubsystems(wiki.SubsystemList{Subsystems: tt.subs}, []string{"src/a.go"})
			assert.ErrorIs(t, err, wiki.ErrInvalidGenerationOutput)
		})
	}
}

func TestExtractSubsystems_UsesSignalFiles(t *testing.T) {
	fake := llmtest.Static(wiki.SubsystemList{
		ProductSummary: "Shop",
		Subsystems: []wiki.Subsystem{
			subsystem("checkout", "Checkout"), subsystem("search", "Search"), subsystem("accounts", "Accounts"),
		},
	})
	signal := []wiki.RepoFileContent{{Path: "src/a.go", Content: "package a\n"}}
	got, err := newEngine(fake).ExtractSubsystems(context.Background(), "acme/shop", []string{"src/a.go"}, signal)
	require.NoError(t, err)
	assert.Len(t, got.Subsystems, 3)
	assert.Contains(t, fake.Calls()[0].Prompt, "### FILE: src/a.go")
}

func TestValidateEvidence_BoundsAgainstRealFile(t *testing.T) {
	files := NewFileSet([]wiki.RepoFileContent{{Path: "a.go", Content: lines(50)}, {Path: "b.go", Content: lines(10)}})
	items := []wiki.EvidenceItem{
		{Path: "a.go", StartLine: 10, EndLine: 20, Score: 0.4},
		{Path: "a.go", StartLine: 40, EndLine: 60, Score: 0.9}, // past EOF
		{Path: "a.go", StartLine: 0, EndLine: 3, Score: 0.9},   // zero start
		{Path: "a.go", StartLine: 8, EndLine: 5, Score: 0.9},   // reversed
		{Path: "b.go", StartLine: 1, EndLine: 2, Score: 0.9},   // not shown
		{Path: "x.go", StartLine: 1, EndLine: 2, Score: 0.9},   // unknown
		{Path: "a.go", StartLine: 1, EndLine: 50, Score: 1.7},  // clamped
		{Path: "a.go", StartLine: 10, EndLine: 20, Score: 0.1}, // duplicate range
	}

	got := ValidateEvidence(items, []string{"a.go"}, files)
	require.Len(t, got, 2)
	assert.Equal(t, wiki.EvidenceItem{Path: "a.go", StartLine: 1, EndLine: 50, Score: 1}, got[0])
	assert.Equal(t, 10, got[1].StartLine)
	for _, it := range got {
		total, _ := files.LineCount(it.Path)
		assert.True(t, 1 <= it.StartLine && it.StartLine <= it.EndLine && it.EndLine <= total)
	}
}

func TestValidateEvidence_CapsAtMax(t *testing.T) {
	files := NewFileSet([]wiki.RepoFileContent{{Path: "a.go", Content: lines(100)}})
	var items []wiki.EvidenceItem
	for i := 1; i <= 12; i++ {
		items = append(items, wiki.EvidenceItem{Path: "a.go", StartLine: i, EndLine: i, Score: float64(i) / 12})
	}
	got := ValidateEvidence(items, []string{"a.go"}, files)
	require.Len(t, got, wiki.MaxEvidenceItems)
	assert.Equal(t, 12, got[0].StartLine)
}

func TestMapEvidence_ModelEvidence(t *testing.T) {
	files := NewFileSet([]wiki.RepoFileContent{{Path: "src/a.go", Content: "package a\n\nfunc Pay() {}\n"}})
	fake := llmtest.Static(map[string]any{"evidence": []wiki.EvidenceItem{
		{Path: "src/a.go", StartLine: 3, EndLine: 3, Rationale: "pays", Score: 0.8},
	}})

	ev, err := newEngine(fake).MapEvidence(context.Background(), "acme/shop", subsystem("checkout", "Checkout"), files, []string{"src/a.go", "src/unfetched.go"})
	require.NoError(t, err)
	assert.Equal(t, wiki.EvidenceFromModel, ev.Source)
	require.Len(t, ev.Evidence, 1)

	prompt := fake.Calls()[0].Prompt
	assert.Contains(t, prompt, "### FILE: src/a.go (total lines: 4)")
	assert.Contains(t, prompt, "func Pay")
	assert.NotContains(t, prompt, "src/unfetched.go")
}

func TestMapEvidence_FallbackWhenNothingValid(t *testing.T) {
	files := NewFileSet([]wiki.RepoFileContent{
		{Path: "a.go", Content: lines(100)},
		{Path: "b.go", Content: lines(12)},
		{Path: "c.go", Content: lines(5)},
		{Path: "d.go", Content: lines(5)},
	})
	fake := llmtest.Static(map[string]any{"evidence": []wiki.EvidenceItem{{Path: "ghost.go", StartLine: 1, EndLine: 2}}})

	ev, err := newEngine(fake).MapEvidence(context.Background(), "acme/shop", subsystem("checkout", "Checkout"), files, []string{"b.go", "a.go", "c.go", "d.go"})
	require.NoError(t, err)
	assert.Equal(t, wiki.EvidenceFromFallback, ev.Source)
	require.Len(t, ev.Evidence, 3)
	assert.Equal(t, wiki.EvidenceItem{Path: "b.go", StartLine: 1, EndLine: 12, Score: 0.2, Rationale: "Fallback evidence: opening lines of b.go."}, ev.Evidence[0])
	assert.Equal(t, 40, ev.Evidence[1].EndLine)
}

func TestMapEvidence_FallbackOnGenerationError(t *testing.T) {
	files := NewFileSet([]wiki.RepoFileContent{{Path: "a.go", Content: lines(3)}})
	failing := &llmtest.Fake{Respond: func(string, *llm.Schema) (any, error) { return nil, errors.New("timeout") }}

	ev, err := newEngine(failing).MapEvidence(context.Background(), "acme/shop", subsystem("checkout", "Checkout"), files, []string{"a.go"})
	require.NoError(t, err)
	assert.Equal(t, wiki.EvidenceFromFallback, ev.Source)
}

func TestMapEvidence_NoCandidatesFetched(t *testing.T) {
	fake := llmtest.Static(map[string]any{"evidence": []any{}})
	_, err := newEngine(fake).MapEvidence(context.Background(), "acme/shop", subsystem("checkout", "Checkout"), NewFileSet(), []string{"a.go"})
	assert.ErrorIs(t, err, wiki.ErrEmptyEvidenceContext)
	assert.Empty(t, fake.Calls())
}
