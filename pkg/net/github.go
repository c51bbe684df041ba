package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/go-github/v83/github"
)

const rateLimitThreshold = 10

// GitHubFile points at a file in a GitHub repository, e.g. a reference table
// published next to the code that fitted it.
type GitHubFile struct {
	Owner string `json:"owner" yaml:"owner"`
	Repo  string `json:"repo" yaml:"repo"`
	Path  string `json:"path" yaml:"path"`
	Ref   string `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// ParseGitHubFile builds a GitHubFile from "owner/repo" plus the path and ref.
func ParseGitHubFile(repo, path, ref string) (*GitHubFile, error) {
	parts := strings.Split(strings.Trim(repo, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/repo", repo)
	}
	if strings.Trim(path, "/") == "" {
		return nil, errors.New("file path required")
	}
	return &GitHubFile{
		Owner: parts[0],
		Repo:  parts[1],
		Path:  strings.Trim(path, "/"),
		Ref:   ref,
	}, nil
}

func (f *GitHubFile) String() string {
	s := fmt.Sprintf("github.com/%s/%s/%s", f.Owner, f.Repo, f.Path)
	if f.Ref != "" {
		s += "@" + f.Ref
	}
	return s
}

// NewGitHubClient returns a GitHub API client, authenticated when token is set.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	return github.NewClient(GetOAuthClient(ctx, token))
}

// FetchGitHubFile downloads the content of f.
func FetchGitHubFile(ctx context.Context, client *github.Client, f *GitHubFile) ([]byte, error) {
	if client == nil || f == nil {
		return nil, errors.New("client and file required")
	}

	var opts *github.RepositoryContentGetOptions
	if f.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: f.Ref}
	}

	rc, resp, err := client.Repositories.DownloadContents(ctx, f.Owner, f.Repo, f.Path, opts)
	checkRateLimit(resp)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", f, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", f, err)
	}
	return b, nil
}

func checkRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}

	if resp.Rate.Remaining > rateLimitThreshold {
		return
	}

	resetAt := resp.Rate.Reset.Time
	wait := time.Until(resetAt)
	if wait <= 0 {
		return
	}

	jitter := time.Duration(rand.IntN(2000)) * time.Millisecond
	total := wait + jitter

	slog.Info("rate limit approaching, waiting",
		"remaining", resp.Rate.Remaining,
		"reset_at", resetAt.Format(time.RFC3339),
		"wait", total.String(),
	)

	time.Sleep(total)
}
