package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Run executes git in dir and returns trimmed stdout.
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("git %s failed: %s: %w", strings.Join(args, " "), msg, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ResolveSHA returns the full commit SHA for ref in dir. An empty ref means HEAD.
func ResolveSHA(ctx context.Context, dir, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		ref = "HEAD"
	}
	return Run(ctx, dir, "rev-parse", "--verify", ref+"^{commit}")
}

// IsDirty reports whether the working tree has uncommitted changes.
func IsDirty(ctx context.Context, dir string) (bool, error) {
	out, err := Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteSlug returns owner and repo parsed from the origin remote URL.
func RemoteSlug(ctx context.Context, dir string) (string, string, error) {
	url, err := Run(ctx, dir, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", "", err
	}
	owner, repo, ok := ParseRemote(url)
	if !ok {
		return "", "", fmt.Errorf("cannot parse owner/repo from remote %q", url)
	}
	return owner, repo, nil
}

// Matches git@host:owner/repo(.git) and scheme://host/owner/repo(.git).
var remotePattern = regexp.MustCompile(`^(?:[a-z+]+://(?:[^@/]+@)?[^/]+/|[^@]+@[^:]+:)([^/]+)/([^/]+?)(?:\.git)?/?$`)

func ParseRemote(url string) (owner, repo string, ok bool) {
	m := remotePattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
