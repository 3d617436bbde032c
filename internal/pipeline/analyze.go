package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repowiki/internal/generator"
	"repowiki/internal/metrics"
	"repowiki/internal/pathfilter"
	"repowiki/internal/storage"
	"repowiki/internal/wiki"
)

const DefaultConcurrency = 4

// Fetcher reads a repository snapshot. Implemented by the GitHub client and
// the local crawler.
type Fetcher interface {
	HeadSHA(ctx context.Context, owner, repo, ref string) (string, error)
	Tree(ctx context.Context, owner, repo, sha string) ([]wiki.RepoFile, error)
	Contents(ctx context.Context, owner, repo, ref string, paths []string) ([]wiki.RepoFileContent, error)
}

// worktree is implemented by fetchers that read a local checkout whose files
// may differ from the resolved SHA.
type worktree interface {
	Dirty(ctx context.Context) (bool, error)
}

type Options struct {
	Filter      pathfilter.Filter
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Analyzer runs the full pipeline for one repository snapshot per call. It
// holds no per-run state and may serve concurrent requests.
type Analyzer struct {
	fetcher     Fetcher
	engine      *generator.Engine
	store       storage.Store
	filter      pathfilter.Filter
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewAnalyzer(fetcher Fetcher, engine *generator.Engine, store storage.Store, opts Options) *Analyzer {
	if store == nil {
		store = storage.NopStore{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if cs, ok := store.(*storage.CachedStore); ok && opts.Metrics != nil && cs.OnLookup == nil {
		m := opts.Metrics
		cs.OnLookup = func(hit bool) { m.ObserveCache("memory", hit) }
	}
	return &Analyzer{
		fetcher:     fetcher,
		engine:      engine,
		store:       store,
		filter:      opts.Filter,
		concurrency: opts.Concurrency,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

type Request struct {
	Owner string
	Repo  string
	// Ref is a branch, tag or SHA. Empty means the default branch.
	Ref string
	// Force skips the cache lookup. The fresh result is still stored only if
	// no record exists for the SHA.
	Force bool
}

type Result struct {
	Record   *wiki.AnalyzeCacheRecord
	Report   *generator.RunReport
	CacheHit bool
}

// run carries the state of one Analyze call.
type run struct {
	req    Request
	ref    wiki.RepoRef
	report *generator.RunReport
	logger *slog.Logger

	cleaned    []string
	signal     []string
	files      generator.FileSet
	list       wiki.SubsystemList
	candidates [][]string
	evidence   []wiki.SubsystemEvidence
	pages      []wiki.WikiPage
}

// Analyze resolves the snapshot, serves it from cache when possible, and
// otherwise runs every stage. On failure the returned Result still carries
// the run report; Record is nil.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	req.Repo = strings.TrimSpace(req.Repo)
	if req.Owner == "" || req.Repo == "" {
		return nil, wiki.NewError(wiki.CodeInvalidRepository, "owner and repo are required")
	}

	runID := uuid.NewString()
	r := &run{
		req:    req,
		ref:    wiki.RepoRef{Owner: req.Owner, Repo: req.Repo},
		report: generator.NewRunReport(runID, req.Owner, req.Repo),
		logger: a.logger.With("run_id", runID, "owner", req.Owner, "repo", req.Repo),
	}
	res := &Result{Report: r.report}

	ctx = generator.WithSchemaDeviation(ctx, func(stage string, err error) {
		r.report.AddSignal("SCHEMA_DEVIATION", stage, "warning", err.Error(), 0)
		a.metrics.AddSchemaDeviation(stage)
	})
	rec, err := a.execute(ctx, r)
	r.report.Finalize()
	if err != nil {
		a.metrics.ObserveRun("failed")
		r.logger.ErrorContext(ctx, "analysis failed", "code", wiki.CodeOf(err), "error", err)
		return res, err
	}

	res.Record = rec
	res.CacheHit = r.report.CacheHit
	status := "ok"
	if res.CacheHit {
		status = "cached"
	}
	a.metrics.ObserveRun(status)
	r.logger.InfoContext(ctx, "analysis complete", "sha", r.ref.SHA, "cache_hit", res.CacheHit, "pages", len(rec.Result.WikiPages))
	return res, nil
}

func (a *Analyzer) execute(ctx context.Context, r *run) (*wiki.AnalyzeCacheRecord, error) {
	if err := a.stage(ctx, r, "resolve_head", a.resolveHeadStage); err != nil {
		return nil, err
	}
	key := wiki.CacheKey(r.ref.Owner, r.ref.Repo, r.ref.SHA)

	if !r.req.Force {
		if rec := a.lookup(ctx, r, key); rec != nil {
			r.report.CacheHit = true
			return rec, nil
		}
	}

	stages := []struct {
		name string
		fn   func(context.Context, *run) (map[string]float64, error)
	}{
		{"filter_tree", a.filterTreeStage},
		{"select_signal", a.signalStage},
		{"extract_subsystems", a.extractStage},
		{"score_candidates", a.scoreStage},
		{"fetch_candidates", a.fetchCandidatesStage},
		{"map_evidence", a.evidenceStage},
		{"draft_pages", a.draftStage},
	}
	for _, s := range stages {
		if err := a.stage(ctx, r, s.name, s.fn); err != nil {
			return nil, err
		}
	}

	rec := &wiki.AnalyzeCacheRecord{
		CacheKey:  key,
		Owner:     r.ref.Owner,
		Repo:      r.ref.Repo,
		HeadSHA:   r.ref.SHA,
		CreatedAt: a.now().UTC(),
		Result: wiki.AnalyzeResult{
			ProductSummary: r.list.ProductSummary,
			Subsystems:     r.list.Subsystems,
			WikiPages:      r.pages,
		},
	}
	if err := a.store.Put(ctx, key, rec); err != nil {
		r.logger.WarnContext(ctx, "failed to store analysis", "key", key, "error", err)
		r.report.AddSignal("CACHE_WRITE_FAILED", "store", "warning", err.Error(), 0)
	}
	return rec, nil
}

// stage times fn and records its outcome in the report, the metrics and the log.
func (a *Analyzer) stage(ctx context.Context, r *run, name string, fn func(context.Context, *run) (map[string]float64, error)) error {
	h := r.report.BeginStage(name)
	start := time.Now()
	counters, err := fn(ctx, r)
	elapsed := time.Since(start)

	var notes []string
	if code := wiki.CodeOf(err); code != "" {
		notes = append(notes, "code="+string(code))
	}
	r.report.EndStage(h, counters, notes, err)
	a.metrics.ObserveStage(name, elapsed, err)

	if err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "stage complete", "stage", name, "duration_ms", elapsed.Milliseconds())
	return nil
}

func (a *Analyzer) lookup(ctx context.Context, r *run, key string) *wiki.AnalyzeCacheRecord {
	rec, err := a.store.Get(ctx, key)
	if err != nil {
		r.logger.WarnContext(ctx, "cache lookup failed, running fresh analysis", "key", key, "error", err)
		r.report.AddSignal("CACHE_READ_FAILED", "cache_lookup", "warning", err.Error(), 0)
		return nil
	}
	a.metrics.ObserveCache("store", rec != nil)
	return rec
}

func (a *Analyzer) resolveHeadStage(ctx context.Context, r *run) (map[string]float64, error) {
	sha, err := a.fetcher.HeadSHA(ctx, r.req.Owner, r.req.Repo, r.req.Ref)
	if err != nil {
		return nil, err
	}
	r.ref.SHA = sha
	r.report.HeadSHA = sha
	r.logger = r.logger.With("sha", sha)

	if wt, ok := a.fetcher.(worktree); ok {
		dirty, err := wt.Dirty(ctx)
		switch {
		case err != nil:
			r.logger.WarnContext(ctx, "cannot check working tree", "error", err)
		case dirty:
			r.logger.WarnContext(ctx, "working tree has uncommitted changes")
			r.report.AddSignal("DIRTY_WORKTREE", "resolve_head", "warning",
				"working tree has uncommitted changes; citations may not match commit "+sha, 0)
		}
	}
	return nil, nil
}

func (a *Analyzer) filterTreeStage(ctx context.Context, r *run) (map[string]float64, error) {
	tree, err := a.fetcher.Tree(ctx, r.ref.Owner, r.ref.Repo, r.ref.SHA)
	if err != nil {
		return nil, err
	}
	raw := make([]string, 0, len(tree))
	for _, f := range tree {
		raw = append(raw, f.Path)
	}
	r.cleaned = a.filter.Filter(raw)
	counters := map[string]float64{"raw_paths": float64(len(raw)), "cleaned_paths": float64(len(r.cleaned))}
	if len(r.cleaned) == 0 {
		return counters, wiki.NewError(wiki.CodeEmptyFileTree, "repository has no analyzable files", "repo", r.ref.Slug())
	}
	return counters, nil
}

func (a *Analyzer) signalStage(ctx context.Context, r *run) (map[string]float64, error) {
	signal, err := a.engine.SelectSignalPaths(ctx, r.ref.Slug(), r.cleaned)
	if err != nil {
		return nil, err
	}
	r.signal = signal

	contents, err := a.fetcher.Contents(ctx, r.ref.Owner, r.ref.Repo, r.ref.SHA, signal)
	if err != nil {
		return nil, err
	}
	r.files = generator.NewFileSet(contents)
	return map[string]float64{"signal_paths": float64(len(signal)), "signal_files": float64(len(contents))}, nil
}

func (a *Analyzer) extractStage(ctx context.Context, r *run) (map[string]float64, error) {
	var signalFiles []wiki.RepoFileContent
	for _, p := range r.signal {
		if f, ok := r.files[p]; ok {
			signalFiles = append(signalFiles, f)
		}
	}
	list, err := a.engine.ExtractSubsystems(ctx, r.ref.Slug(), r.cleaned, signalFiles)
	if err != nil {
		return nil, err
	}
	r.list = list
	return map[string]float64{"subsystems": float64(len(list.Subsystems))}, nil
}

func (a *Analyzer) scoreStage(_ context.Context, r *run) (map[string]float64, error) {
	maxFiles := a.engine.Options().EvidenceFiles
	r.candidates = make([][]string, len(r.list.Subsystems))
	total := 0
	for i, sub := range r.list.Subsystems {
		scored := generator.ScorePaths(sub, r.cleaned, maxFiles)
		r.report.RecordCandidates(sub, scored)
		r.candidates[i] = generator.CandidatePaths(scored)
		total += len(scored)
	}
	return map[string]float64{"candidates": float64(total)}, nil
}

// fetchCandidatesStage fetches the union of all candidate paths once,
// skipping files already loaded for signal selection.
func (a *Analyzer) fetchCandidatesStage(ctx context.Context, r *run) (map[string]float64, error) {
	seen := make(map[string]struct{})
	var missing []string
	for _, cands := range r.candidates {
		for _, p := range cands {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			if _, ok := r.files[p]; !ok {
				missing = append(missing, p)
			}
		}
	}
	if len(missing) == 0 {
		return map[string]float64{"requested": 0, "fetched": 0}, nil
	}
	contents, err := a.fetcher.Contents(ctx, r.ref.Owner, r.ref.Repo, r.ref.SHA, missing)
	if err != nil {
		return nil, err
	}
	r.files.Add(contents)
	return map[string]float64{"requested": float64(len(missing)), "fetched": float64(len(contents))}, nil
}

func (a *Analyzer) evidenceStage(ctx context.Context, r *run) (map[string]float64, error) {
	subs := r.list.Subsystems
	r.evidence = make([]wiki.SubsystemEvidence, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			ev, err := a.engine.MapEvidence(gctx, r.ref.Slug(), sub, r.files, r.candidates[i])
			if err != nil {
				return err
			}
			r.evidence[i] = ev
			r.report.RecordEvidence(sub, ev)
			if ev.Source == wiki.EvidenceFromFallback {
				a.metrics.AddFallback()
				r.logger.WarnContext(gctx, "using fallback evidence", "subsystem", sub.ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items, fallbacks := 0, 0
	for _, ev := range r.evidence {
		items += len(ev.Evidence)
		if ev.Source == wiki.EvidenceFromFallback {
			fallbacks++
		}
	}
	return map[string]float64{"evidence_items": float64(items), "fallback_subsystems": float64(fallbacks)}, nil
}

func (a *Analyzer) draftStage(ctx context.Context, r *run) (map[string]float64, error) {
	subs := r.list.Subsystems
	r.pages = make([]wiki.WikiPage, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			page, err := a.engine.DraftPage(gctx, r.ref.Slug(), sub, &r.evidence[i], r.files, r.ref)
			if err != nil {
				return err
			}
			r.pages[i] = page
			r.report.RecordPage(sub, page, generator.AssessPage(page))
			a.metrics.AddCitations(len(page.Citations))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	citations := 0
	for _, p := range r.pages {
		citations += len(p.Citations)
	}
	return map[string]float64{"pages": float64(len(r.pages)), "citations": float64(citations)}, nil
}
