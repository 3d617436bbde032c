// Package mcpserver exposes repository analysis as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"repowiki/internal/pipeline"
	"repowiki/internal/storage"
	"repowiki/internal/wiki"
)

const Version = "0.1.0"

type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type AnalyzeRequest struct {
	Repository string `json:"repository"` // owner/repo
	Ref        string `json:"ref"`        // branch, tag or SHA; empty for the default branch
	Force      bool   `json:"force"`      // bypass the cache
}

type AnalyzeResponse struct {
	Owner          string           `json:"owner"`
	Repo           string           `json:"repo"`
	HeadSHA        string           `json:"headSha"`
	CacheHit       bool             `json:"cacheHit"`
	ProductSummary string           `json:"productSummary"`
	Subsystems     []wiki.Subsystem `json:"subsystems"`
	Pages          []PageSummary    `json:"pages"`
}

type PageSummary struct {
	SubsystemID    string              `json:"subsystemId"`
	SubsystemName  string              `json:"subsystemName"`
	Citations      int                 `json:"citations"`
	EvidenceSource wiki.EvidenceSource `json:"evidenceSource,omitempty"`
}

type GetPageRequest struct {
	Repository  string `json:"repository"`  // owner/repo
	SHA         string `json:"sha"`         // commit the analysis was run against
	SubsystemID string `json:"subsystemId"` // page to return
}

// NewServer registers analyze_repository and get_wiki_page. get_wiki_page is
// only offered when store persists records.
func NewServer(analyzer Analyzer, store storage.Store) *server.MCPServer {
	s := server.NewMCPServer(
		"repowiki",
		Version,
		server.WithToolCapabilities(false),
	)

	analyzeTool := mcp.NewTool("analyze_repository",
		mcp.WithDescription("Generate feature-oriented wiki pages for a public GitHub repository, each claim cited to exact lines at a fixed commit"),
		mcp.WithString("repository",
			mcp.Required(),
			mcp.Description("Repository as owner/repo"),
		),
		mcp.WithString("ref",
			mcp.Description("Branch, tag or commit SHA (defaults to the default branch)"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Ignore a cached analysis for the same commit"),
		),
	)
	s.AddTool(analyzeTool, mcp.NewTypedToolHandler(analyzeHandler(analyzer)))

	if storage.Persistent(store) {
		pageTool := mcp.NewTool("get_wiki_page",
			mcp.WithDescription("Return the markdown of one wiki page from a cached analysis"),
			mcp.WithString("repository", mcp.Required(), mcp.Description("Repository as owner/repo")),
			mcp.WithString("sha", mcp.Required(), mcp.Description("Commit SHA returned by analyze_repository")),
			mcp.WithString("subsystemId", mcp.Required(), mcp.Description("Subsystem id of the page")),
		)
		s.AddTool(pageTool, mcp.NewTypedToolHandler(getPageHandler(store)))
	}
	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func analyzeHandler(analyzer Analyzer) func(ctx context.Context, request mcp.CallToolRequest, args AnalyzeRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args AnalyzeRequest) (*mcp.CallToolResult, error) {
		owner, repo, err := SplitRepository(args.Repository)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := analyzer.Analyze(ctx, pipeline.Request{Owner: owner, Repo: repo, Ref: args.Ref, Force: args.Force})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		rec := res.Record
		response := AnalyzeResponse{
			Owner:          rec.Owner,
			Repo:           rec.Repo,
			HeadSHA:        rec.HeadSHA,
			CacheHit:       res.CacheHit,
			ProductSummary: rec.Result.ProductSummary,
			Subsystems:     rec.Result.Subsystems,
		}
		for _, p := range rec.Result.WikiPages {
			response.Pages = append(response.Pages, PageSummary{
				SubsystemID:    p.SubsystemID,
				SubsystemName:  p.SubsystemName,
				Citations:      len(p.Citations),
				EvidenceSource: p.EvidenceSource,
			})
		}

		responseBytes, err := json.Marshal(response)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(responseBytes)), nil
	}
}

func getPageHandler(store storage.Store) func(ctx context.Context, request mcp.CallToolRequest, args GetPageRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args GetPageRequest) (*mcp.CallToolResult, error) {
		owner, repo, err := SplitRepository(args.Repository)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if strings.TrimSpace(args.SHA) == "" || strings.TrimSpace(args.SubsystemID) == "" {
			return mcp.NewToolResultError("sha and subsystemId are required"), nil
		}

		rec, err := store.Get(ctx, wiki.CacheKey(owner, repo, args.SHA))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read cache: %v", err)), nil
		}
		if rec == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no analysis cached for %s/%s at %s", owner, repo, args.SHA)), nil
		}
		for _, p := range rec.Result.WikiPages {
			if p.SubsystemID == args.SubsystemID {
				return mcp.NewToolResultText(p.Markdown), nil
			}
		}
		return mcp.NewToolResultError(fmt.Sprintf("no page for subsystem %q", args.SubsystemID)), nil
	}
}

// SplitRepository parses "owner/repo", also accepting a github.com URL.
func SplitRepository(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", s)
	}
	return parts[0], parts[1], nil
}
