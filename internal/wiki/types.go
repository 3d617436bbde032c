package wiki

import (
	"regexp"
	"strings"
	"time"
)

// RepoRef pins a repository snapshot. Citations and cache records are anchored to SHA.
type RepoRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	SHA   string `json:"sha"`
}

// Slug returns "owner/repo".
func (r RepoRef) Slug() string {
	return r.Owner + "/" + r.Repo
}

// RepoFile is a tree entry. Identity is Path.
type RepoFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// RepoFileContent is a fetched blob. It only lives for the duration of a run.
type RepoFileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// Subsystem is a user-facing feature area of the analyzed repository.
type Subsystem struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	UserJourney      string   `json:"userJourney"`
	RelevantPaths    []string `json:"relevantPaths"`
	EntryPoints      []string `json:"entryPoints"`
	ExternalServices []string `json:"externalServices"`
}

// SubsystemList is the extractor output.
type SubsystemList struct {
	ProductSummary string      `json:"productSummary"`
	Subsystems     []Subsystem `json:"subsystems"`
}

const (
	MinSubsystems = 3
	MaxSubsystems = 8
)

// ScoredPath is an ephemeral ranking entry.
type ScoredPath struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// EvidenceItem asserts that Path[StartLine:EndLine] supports a subsystem.
type EvidenceItem struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Rationale string  `json:"rationale"`
	Score     float64 `json:"score"`
}

// EvidenceSource tags where a SubsystemEvidence came from.
type EvidenceSource string

const (
	EvidenceFromModel    EvidenceSource = "model"
	EvidenceFromFallback EvidenceSource = "fallback"
)

const MaxEvidenceItems = 8

// SubsystemEvidence groups validated evidence for one subsystem.
type SubsystemEvidence struct {
	SubsystemID   string         `json:"subsystemId"`
	SubsystemName string         `json:"subsystemName"`
	Source        EvidenceSource `json:"source"`
	Evidence      []EvidenceItem `json:"evidence"`
}

// Citation is a validated reference found in drafted markdown.
type Citation struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	URL       string `json:"url"`
}

// WikiPage is the final page for one subsystem.
type WikiPage struct {
	SubsystemID    string         `json:"subsystemId"`
	SubsystemName  string         `json:"subsystemName"`
	Markdown       string         `json:"markdown"`
	Citations      []Citation     `json:"citations"`
	EvidenceSource EvidenceSource `json:"evidenceSource,omitempty"`
}

// AnalyzeResult is the artifact handed to downstream consumers.
type AnalyzeResult struct {
	ProductSummary string      `json:"productSummary"`
	Subsystems     []Subsystem `json:"subsystems"`
	WikiPages      []WikiPage  `json:"wikiPages"`
}

// AnalyzeCacheRecord is the only persisted state. Records are immutable once written.
type AnalyzeCacheRecord struct {
	CacheKey  string        `json:"cacheKey"`
	Owner     string        `json:"owner"`
	Repo      string        `json:"repo"`
	HeadSHA   string        `json:"headSha"`
	CreatedAt time.Time     `json:"createdAt"`
	Result    AnalyzeResult `json:"result"`
}

var cacheKeyUnsafe = regexp.MustCompile(`[^a-z0-9._-]`)

// CacheKey builds "{owner}__{repo}__{headSha}" with each segment normalized.
func CacheKey(owner, repo, headSHA string) string {
	seg := func(s string) string {
		return cacheKeyUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	}
	return seg(owner) + "__" + seg(repo) + "__" + seg(headSHA)
}
