package generator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"repowiki/internal/wiki"
)

type ReportSignal struct {
	Code     string  `json:"code"`
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type SubsystemMetric struct {
	SubsystemID     string              `json:"subsystem_id"`
	Name            string              `json:"name"`
	CandidateCount  int                 `json:"candidate_count"`
	TopCandidate    string              `json:"top_candidate,omitempty"`
	EvidenceCount   int                 `json:"evidence_count"`
	EvidenceSource  wiki.EvidenceSource `json:"evidence_source,omitempty"`
	AvgEvidence     float64             `json:"avg_evidence_score"`
	CitationCount   int                 `json:"citation_count"`
	MarkdownChars   int                 `json:"markdown_chars"`
	QualityScore    float64             `json:"quality_score"`
	QualityIssues   []string            `json:"quality_issues,omitempty"`
	MissingHeadings []string            `json:"missing_headings,omitempty"`
}

type ReportSummary struct {
	StageCount         int            `json:"stage_count"`
	SubsystemCount     int            `json:"subsystem_count"`
	FailedStages       int            `json:"failed_stages"`
	FallbackSubsystems int            `json:"fallback_subsystems"`
	TotalCitations     int            `json:"total_citations"`
	SignalsBySeverity  map[string]int `json:"signals_by_severity"`
}

// RunReport records what one pipeline run did. Methods are safe for
// concurrent use by per-subsystem workers.
type RunReport struct {
	Version     string            `json:"version"`
	RunID       string            `json:"run_id"`
	Owner       string            `json:"owner"`
	Repo        string            `json:"repo"`
	HeadSHA     string            `json:"head_sha,omitempty"`
	CacheHit    bool              `json:"cache_hit"`
	GeneratedAt string            `json:"generated_at"`
	Stages      []StageMetric     `json:"stages"`
	Subsystems  []SubsystemMetric `json:"subsystems,omitempty"`
	Signals     []ReportSignal    `json:"signals,omitempty"`
	Summary     ReportSummary     `json:"summary"`

	mu sync.Mutex
}

type StageHandle struct {
	name    string
	started time.Time
}

func NewRunReport(runID, owner, repo string) *RunReport {
	return &RunReport{
		Version:     "v1",
		RunID:       runID,
		Owner:       owner,
		Repo:        repo,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stages:      []StageMetric{},
		Subsystems:  []SubsystemMetric{},
		Signals:     []ReportSignal{},
	}
}

func (r *RunReport) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *RunReport) EndStage(h StageHandle, counters map[string]float64, notes []string, err error) {
	if r == nil || h.name == "" {
		return
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     "ok",
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
		Notes:      cleanNotes(notes),
	}
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	r.mu.Lock()
	r.Stages = append(r.Stages, m)
	r.mu.Unlock()
}

func (r *RunReport) AddSignal(code, stage, severity, message string, value float64) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Message:  strings.TrimSpace(message),
		Value:    value,
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.mu.Lock()
	r.Signals = append(r.Signals, s)
	r.mu.Unlock()
}

// RecordCandidates notes the scorer output for a subsystem.
func (r *RunReport) RecordCandidates(sub wiki.Subsystem, scored []wiki.ScoredPath) {
	r.update(sub, func(m *SubsystemMetric) {
		m.CandidateCount = len(scored)
		if len(scored) > 0 {
			m.TopCandidate = scored[0].Path
		}
	})
}

// RecordEvidence notes the mapper output and flags fallback evidence.
func (r *RunReport) RecordEvidence(sub wiki.Subsystem, ev wiki.SubsystemEvidence) {
	r.update(sub, func(m *SubsystemMetric) {
		m.EvidenceCount = len(ev.Evidence)
		m.EvidenceSource = ev.Source
		total := 0.0
		for _, it := range ev.Evidence {
			total += it.Score
		}
		if len(ev.Evidence) > 0 {
			m.AvgEvidence = total / float64(len(ev.Evidence))
		}
	})
	if ev.Source == wiki.EvidenceFromFallback {
		r.AddSignal("FALLBACK_EVIDENCE", "evidence", "warning",
			"subsystem "+sub.ID+" uses fallback evidence (opening lines of candidate files)", float64(len(ev.Evidence)))
	}
}

// RecordPage notes the drafted page with its quality assessment.
func (r *RunReport) RecordPage(sub wiki.Subsystem, page wiki.WikiPage, q PageQuality) {
	r.update(sub, func(m *SubsystemMetric) {
		m.CitationCount = len(page.Citations)
		m.MarkdownChars = len(page.Markdown)
		m.QualityScore = q.Score
		m.QualityIssues = cleanNotes(q.Issues)
		m.MissingHeadings = cleanNotes(q.MissingHeadings)
	})
	if len(q.MissingHeadings) > 0 {
		r.AddSignal("MISSING_HEADINGS", "draft", "info",
			"page "+sub.ID+" lacks: "+strings.Join(q.MissingHeadings, ", "), float64(len(q.MissingHeadings)))
	}
	if q.Score < lowQualityScore {
		r.AddSignal("LOW_PAGE_QUALITY", "draft", "warning",
			"page "+sub.ID+" scored low: "+strings.Join(q.Issues, ", "), q.Score)
	}
}

func (r *RunReport) update(sub wiki.Subsystem, fn func(m *SubsystemMetric)) {
	if r == nil || sub.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Subsystems {
		if r.Subsystems[i].SubsystemID == sub.ID {
			fn(&r.Subsystems[i])
			return
		}
	}
	m := SubsystemMetric{SubsystemID: sub.ID, Name: sub.Name}
	fn(&m)
	r.Subsystems = append(r.Subsystems, m)
}

func (r *RunReport) Finalize() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	severityCount := map[string]int{
		"critical": 0,
		"warning":  0,
		"info":     0,
	}
	sort.Slice(r.Signals, func(i, j int) bool {
		pi := signalPriority(r.Signals[i].Severity)
		pj := signalPriority(r.Signals[j].Severity)
		if pi == pj {
			if r.Signals[i].Stage == r.Signals[j].Stage {
				if r.Signals[i].Code == r.Signals[j].Code {
					return r.Signals[i].Message < r.Signals[j].Message
				}
				return r.Signals[i].Code < r.Signals[j].Code
			}
			return r.Signals[i].Stage < r.Signals[j].Stage
		}
		return pi > pj
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}
	sort.Slice(r.Subsystems, func(i, j int) bool {
		return r.Subsystems[i].SubsystemID < r.Subsystems[j].SubsystemID
	})

	failed := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failed++
		}
	}
	fallback, citations := 0, 0
	for _, s := range r.Subsystems {
		if s.EvidenceSource == wiki.EvidenceFromFallback {
			fallback++
		}
		citations += s.CitationCount
	}

	r.Summary = ReportSummary{
		StageCount:         len(r.Stages),
		SubsystemCount:     len(r.Subsystems),
		FailedStages:       failed,
		FallbackSubsystems: fallback,
		TotalCitations:     citations,
		SignalsBySeverity:  severityCount,
	}
}

func (r *RunReport) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	r.mu.Lock()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanNotes(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func signalPriority(severity string) int {
	switch severity {
	case "critical":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
