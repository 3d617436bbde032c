// Package github reads repository snapshots from the GitHub REST API: the head
// commit of a ref, the recursive file tree, and file contents.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"repowiki/internal/wiki"
)

const (
	DefaultAPIURL       = "https://api.github.com"
	DefaultMaxFileBytes = 200 * 1024
	DefaultConcurrency  = 8
	DefaultMaxAttempts  = 4
)

type Options struct {
	Token        string
	APIURL       string
	MaxFileBytes int64
	Concurrency  int
	MaxAttempts  int
	// InitialBackoff is the first retry delay; it doubles on each attempt.
	InitialBackoff time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	http         *http.Client
	token        string
	apiURL       string
	maxFileBytes int64
	concurrency  int
	maxAttempts  int
	backoff      time.Duration
	logger       *slog.Logger
}

func NewClient(opts Options) *Client {
	c := &Client{
		http:         opts.HTTPClient,
		token:        strings.TrimSpace(opts.Token),
		apiURL:       strings.TrimRight(strings.TrimSpace(opts.APIURL), "/"),
		maxFileBytes: opts.MaxFileBytes,
		concurrency:  opts.Concurrency,
		maxAttempts:  opts.MaxAttempts,
		backoff:      opts.InitialBackoff,
		logger:       opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.maxFileBytes <= 0 {
		c.maxFileBytes = DefaultMaxFileBytes
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// HeadSHA resolves ref to a commit SHA. An empty ref means the default branch.
func (c *Client) HeadSHA(ctx context.Context, owner, repo, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		var meta struct {
			DefaultBranch string `json:"default_branch"`
		}
		if err := c.getJSON(ctx, repoPath(owner, repo), &meta); err != nil {
			return "", c.repoError(owner, repo, err)
		}
		ref = meta.DefaultBranch
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	if err := c.getJSON(ctx, repoPath(owner, repo)+"/commits/"+url.PathEscape(ref), &commit); err != nil {
		return "", c.repoError(owner, repo, err)
	}
	if commit.SHA == "" {
		return "", wiki.NewError(wiki.CodeInvalidRepository, "commit has no sha", "repo", owner+"/"+repo, "ref", ref)
	}
	return commit.SHA, nil
}

// Tree lists every blob reachable from sha.
func (c *Client) Tree(ctx context.Context, owner, repo, sha string) ([]wiki.RepoFile, error) {
	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := c.getJSON(ctx, repoPath(owner, repo)+"/git/trees/"+url.PathEscape(sha)+"?recursive=1", &tree); err != nil {
		return nil, c.repoError(owner, repo, err)
	}
	if tree.Truncated {
		c.logger.WarnContext(ctx, "tree listing truncated by api", "owner", owner, "repo", repo, "sha", sha)
	}

	files := make([]wiki.RepoFile, 0, len(tree.Tree))
	for _, e := range tree.Tree {
		if e.Type != "blob" {
			continue
		}
		files = append(files, wiki.RepoFile{Path: e.Path, Size: e.Size})
	}
	return files, nil
}

// Contents fetches paths at ref with bounded concurrency. Files over the size
// ceiling, non-files and missing paths are skipped. Any other failure aborts
// with FETCH_FAILED naming the path. Output follows input order.
func (c *Client) Contents(ctx context.Context, owner, repo, ref string, paths []string) ([]wiki.RepoFileContent, error) {
	results := make([]*wiki.RepoFileContent, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			fc, err := c.content(gctx, owner, repo, ref, p)
			if err != nil {
				return wiki.Wrap(wiki.CodeFetchFailed, err, "fetch file contents", "path", p)
			}
			results[i] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]wiki.RepoFileContent, 0, len(paths))
	for _, fc := range results {
		if fc != nil {
			out = append(out, *fc)
		}
	}
	return out, nil
}

func (c *Client) content(ctx context.Context, owner, repo, ref, p string) (*wiki.RepoFileContent, error) {
	var body struct {
		Type     string `json:"type"`
		Encoding string `json:"encoding"`
		Size     int64  `json:"size"`
		Content  string `json:"content"`
	}
	endpoint := repoPath(owner, repo) + "/contents/" + escapePath(p) + "?ref=" + url.QueryEscape(ref)
	err := c.getJSON(ctx, endpoint, &body)
	if err != nil {
		if IsNotFound(err) || isNotObject(err) {
			// Directories come back as arrays, missing files as 404.
			return nil, nil
		}
		return nil, err
	}
	if body.Type != "file" || body.Size > c.maxFileBytes {
		return nil, nil
	}

	var text []byte
	switch body.Encoding {
	case "base64":
		text, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
	case "", "none":
		text = []byte(body.Content)
	default:
		return nil, nil
	}
	return &wiki.RepoFileContent{Path: p, Content: string(text), Size: body.Size}, nil
}

func (c *Client) repoError(owner, repo string, err error) error {
	if IsNotFound(err) {
		return wiki.Wrap(wiki.CodeInvalidRepository, err, "repository or ref not found", "repo", owner+"/"+repo)
	}
	return wiki.Wrap(wiki.CodeFetchFailed, err, "github request failed", "repo", owner+"/"+repo)
}

// getJSON performs a GET with retry on retryable failures and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := c.doGet(ctx, endpoint, v)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.DebugContext(ctx, "github request failed, retrying", "endpoint", endpoint, "attempt", attempt, "error", err)
		return err
	}
	return backoff.Retry(op, policy)
}

func (c *Client) doGet(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			StatusCode:         resp.StatusCode,
			Body:               strings.TrimSpace(string(raw)),
			RateLimitExhausted: resp.Header.Get("X-RateLimit-Remaining") == "0",
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &decodeError{err: err, array: len(raw) > 0 && raw[0] == '['}
	}
	return nil
}

type decodeError struct {
	err   error
	array bool
}

func (e *decodeError) Error() string { return "decode github response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isNotObject(err error) bool {
	var de *decodeError
	return errors.As(err, &de) && de.array
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
