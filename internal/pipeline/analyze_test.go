package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repowiki/internal/generator"
	"repowiki/internal/llm"
	"repowiki/internal/llm/llmtest"
	"repowiki/internal/metrics"
	"repowiki/internal/storage"
	"repowiki/internal/wiki"
)

func lines(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(parts, "\n")
}

type memFetcher struct {
	sha   string
	files map[string]string

	mu       sync.Mutex
	requests [][]string
}

func newMemFetcher() *memFetcher {
	return &memFetcher{
		sha: "abc123",
		files: map[string]string{
			"README.md":                 "# Shop\nAn online store.",
			"src/cart/cart.go":          lines(30),
			"src/checkout/pay.go":       lines(30),
			"src/search/index.go":       lines(30),
			"package-lock.json":         "{}",
			"node_modules/lib/index.js": "module.exports = {}",
			"assets/logo.png":           "\x89PNG",
		},
	}
}

func (f *memFetcher) HeadSHA(_ context.Context, owner, repo, _ string) (string, error) {
	if owner != "acme" || repo != "shop" {
		return "", wiki.NewError(wiki.CodeInvalidRepository, "repository not found")
	}
	return f.sha, nil
}

func (f *memFetcher) Tree(context.Context, string, string, string) ([]wiki.RepoFile, error) {
	var out []wiki.RepoFile
	for p, c := range f.files {
		out = append(out, wiki.RepoFile{Path: p, Size: int64(len(c))})
	}
	return out, nil
}

func (f *memFetcher) Contents(_ context.Context, _, _, _ string, paths []string) ([]wiki.RepoFileContent, error) {
	f.mu.Lock()
	f.requests = append(f.requests, append([]string(nil), paths...))
	f.mu.Unlock()

	var out []wiki.RepoFileContent
	for _, p := range paths {
		if c, ok := f.files[p]; ok {
			out = append(out, wiki.RepoFileContent{Path: p, Content: c, Size: int64(len(c))})
		}
	}
	return out, nil
}

type script struct {
	names         []string
	evidenceErr   error
	evidenceScore float64
	cite          string
}

func defaultScript() script {
	return script{
		names:         []string{"Shopping Cart", "Checkout", "Product Search"},
		evidenceScore: 0.8,
		cite:          "[[cite:src/cart/cart.go:2-6]]",
	}
}

func page(cite string) string {
	var sb strings.Builder
	for _, h := range generator.RequiredHeadings {
		sb.WriteString("## " + h + "\n\nShoppers add items to a cart that is priced on every change " + cite + ".\n\n")
	}
	return sb.String()
}

func (s script) fake() *llmtest.Fake {
	paths := []string{"src/cart/cart.go", "src/checkout/pay.go", "src/search/index.go"}
	return &llmtest.Fake{Respond: func(prompt string, schema *llm.Schema) (any, error) {
		switch {
		case schema.Type == llm.TypeArray:
			return []string{"README.md", "src/cart/cart.go", "ghost.go"}, nil
		case schema.Properties["subsystems"] != nil:
			var subs []map[string]any
			for i, name := range s.names {
				subs = append(subs, map[string]any{
					"id":               generator.Slugify(name),
					"name":             name,
					"description":      name + " feature.",
					"userJourney":      "Shopper uses " + name + ".",
					"relevantPaths":    []string{paths[i%len(paths)]},
					"entryPoints":      []string{paths[i%len(paths)]},
					"externalServices": []string{},
				})
			}
			return map[string]any{"productSummary": "An online store.", "subsystems": subs}, nil
		case schema.Properties["evidence"] != nil:
			if s.evidenceErr != nil {
				return nil, s.evidenceErr
			}
			var items []map[string]any
			for _, p := range paths {
				items = append(items, map[string]any{"path": p, "startLine": 2, "endLine": 6, "rationale": "core logic", "score": s.evidenceScore})
			}
			return map[string]any{"evidence": items}, nil
		case schema.Properties["markdown"] != nil:
			return map[string]any{"markdown": page(s.cite)}, nil
		}
		return nil, errors.New("unexpected schema")
	}}
}

func newAnalyzer(t *testing.T, fetcher Fetcher, fake *llmtest.Fake, m *metrics.Metrics) (*Analyzer, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := generator.NewEngine(fake, generator.Options{}, nil)
	return NewAnalyzer(fetcher, engine, store, Options{Concurrency: 2, Metrics: m}), store
}

func TestAnalyze_FreshRunThenCacheHit(t *testing.T) {
	fetcher := newMemFetcher()
	fake := defaultScript().fake()
	m := metrics.New()
	a, store := newAnalyzer(t, fetcher, fake, m)
	ctx := context.Background()

	res, err := a.Analyze(ctx, Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.False(t, res.CacheHit)

	rec := res.Record
	assert.Equal(t, "acme__shop__abc123", rec.CacheKey)
	assert.Equal(t, "An online store.", rec.Result.ProductSummary)
	require.Len(t, rec.Result.Subsystems, 3)
	require.Len(t, rec.Result.WikiPages, 3)
	for i, p := range rec.Result.WikiPages {
		assert.Equal(t, rec.Result.Subsystems[i].ID, p.SubsystemID)
		require.Len(t, p.Citations, 1)
		assert.Equal(t, "https://github.com/acme/shop/blob/abc123/src/cart/cart.go#L2-L6", p.Citations[0].URL)
		assert.Equal(t, wiki.EvidenceFromModel, p.EvidenceSource)
	}

	// signal + extraction + one evidence and one draft call per subsystem
	assert.Len(t, fake.Calls(), 8)

	// Candidate fetch skips files already loaded for signal selection.
	require.Len(t, fetcher.requests, 2)
	assert.Equal(t, []string{"README.md", "src/cart/cart.go"}, fetcher.requests[0])
	assert.ElementsMatch(t, []string{"src/checkout/pay.go", "src/search/index.go"}, fetcher.requests[1])

	report := res.Report
	assert.Equal(t, "abc123", report.HeadSHA)
	assert.Equal(t, 8, report.Summary.StageCount)
	assert.Equal(t, 0, report.Summary.FailedStages)
	assert.Equal(t, 3, report.Summary.SubsystemCount)
	assert.Equal(t, 3, report.Summary.TotalCitations)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Citations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Empty(t, signalsWithCode(report, "SCHEMA_DEVIATION"))
	assert.Equal(t, 0, testutil.CollectAndCount(m.SchemaDeviations))

	stored, err := store.Get(ctx, rec.CacheKey)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec.Result, stored.Result)

	again, err := a.Analyze(ctx, Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.True(t, again.Report.CacheHit)
	assert.Equal(t, rec.Result, again.Record.Result)
	assert.Len(t, fake.Calls(), 8)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("store", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("cached")))
}

func TestAnalyze_ForceBypassesCache(t *testing.T) {
	fake := defaultScript().fake()
	a, _ := newAnalyzer(t, newMemFetcher(), fake, nil)
	ctx := context.Background()

	_, err := a.Analyze(ctx, Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)
	res, err := a.Analyze(ctx, Request{Owner: "acme", Repo: "shop", Force: true})
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Len(t, fake.Calls(), 16)
}

func TestAnalyze_ForbiddenNameAbortsRun(t *testing.T) {
	s := defaultScript()
	s.names = []string{"Shopping Cart", " API ", "Product Search"}
	a, store := newAnalyzer(t, newMemFetcher(), s.fake(), nil)

	res, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	require.Error(t, err)
	assert.ErrorIs(t, err, wiki.ErrInvalidSubsystemNames)
	require.NotNil(t, res)
	assert.Nil(t, res.Record)
	assert.Equal(t, 1, res.Report.Summary.FailedStages)

	rec, err := store.Get(context.Background(), "acme__shop__abc123")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAnalyze_FallbackEvidenceWhenMapperFails(t *testing.T) {
	s := defaultScript()
	s.evidenceErr = errors.New("model overloaded")
	m := metrics.New()
	a, _ := newAnalyzer(t, newMemFetcher(), s.fake(), m)

	res, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)
	for _, p := range res.Record.Result.WikiPages {
		assert.Equal(t, wiki.EvidenceFromFallback, p.EvidenceSource)
	}
	assert.Equal(t, 3, res.Report.Summary.FallbackSubsystems)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FallbackEvidence))
}

func TestAnalyze_SchemaDeviationIsReported(t *testing.T) {
	s := defaultScript()
	s.evidenceScore = 1.5
	m := metrics.New()
	a, _ := newAnalyzer(t, newMemFetcher(), s.fake(), m)

	res, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)

	// Scores are clamped, so the run still succeeds on model evidence.
	for _, p := range res.Record.Result.WikiPages {
		assert.Equal(t, wiki.EvidenceFromModel, p.EvidenceSource)
	}
	deviations := signalsWithCode(res.Report, "SCHEMA_DEVIATION")
	require.Len(t, deviations, 3)
	for _, sig := range deviations {
		assert.Equal(t, "evidence mapping", sig.Stage)
		assert.Equal(t, "warning", sig.Severity)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SchemaDeviations.WithLabelValues("evidence mapping")))
}

func signalsWithCode(r *generator.RunReport, code string) []generator.ReportSignal {
	var out []generator.ReportSignal
	for _, s := range r.Signals {
		if s.Code == code {
			out = append(out, s)
		}
	}
	return out
}

type dirtyFetcher struct {
	*memFetcher
}

func (dirtyFetcher) Dirty(context.Context) (bool, error) { return true, nil }

func TestAnalyze_FlagsDirtyWorktree(t *testing.T) {
	a, _ := newAnalyzer(t, dirtyFetcher{newMemFetcher()}, defaultScript().fake(), nil)

	res, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	require.NoError(t, err)
	dirty := signalsWithCode(res.Report, "DIRTY_WORKTREE")
	require.Len(t, dirty, 1)
	assert.Equal(t, "resolve_head", dirty[0].Stage)
	assert.Contains(t, dirty[0].Message, "abc123")
}

func TestAnalyze_UncitedPageAbortsRun(t *testing.T) {
	s := defaultScript()
	s.cite = "[[cite:src/cart/cart.go:25-99]]"
	a, _ := newAnalyzer(t, newMemFetcher(), s.fake(), nil)

	_, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	assert.ErrorIs(t, err, wiki.ErrMissingWikiCitations)
}

func TestAnalyze_EmptyTree(t *testing.T) {
	fetcher := newMemFetcher()
	fetcher.files = map[string]string{"go.sum": "", "dist/app.js": "x"}
	fake := defaultScript().fake()
	a, _ := newAnalyzer(t, fetcher, fake, nil)

	_, err := a.Analyze(context.Background(), Request{Owner: "acme", Repo: "shop"})
	assert.ErrorIs(t, err, wiki.ErrEmptyFileTree)
	assert.Empty(t, fake.Calls())
}

func TestAnalyze_InvalidRepository(t *testing.T) {
	a, _ := newAnalyzer(t, newMemFetcher(), defaultScript().fake(), nil)

	_, err := a.Analyze(context.Background(), Request{Owner: "", Repo: "shop"})
	assert.ErrorIs(t, err, wiki.ErrInvalidRepository)

	_, err = a.Analyze(context.Background(), Request{Owner: "acme", Repo: "nope"})
	assert.ErrorIs(t, err, wiki.ErrInvalidRepository)
}
