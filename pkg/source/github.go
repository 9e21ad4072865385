package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultGitBaseURL = "https://github.com"
	DefaultRawBaseURL = "https://raw.githubusercontent.com"

	// maxFileSize bounds a single fetched file so a misbehaving host cannot exhaust memory.
	maxFileSize = 64 << 20
)

// RefLister lists the references of a repository.
type RefLister interface {
	ListRefs(ctx context.Context) (*RefList, error)
}

// Source is the content host as seen by the rest of the gateway.
type Source interface {
	RefLister
	FetchFile(ctx context.Context, revision, path string) ([]byte, error)
}

// GitHubClient reads a single GitHub repository. It is safe for concurrent use.
type GitHubClient struct {
	owner      string
	repo       string
	gitBaseURL string
	rawBaseURL string
	userAgent  string
	httpClient *http.Client
}

// Option configures a GitHubClient.
type Option func(*GitHubClient)

// WithGitBaseURL overrides the host serving "info/refs".
func WithGitBaseURL(base string) Option {
	return func(c *GitHubClient) { c.gitBaseURL = strings.TrimRight(base, "/") }
}

// WithRawBaseURL overrides the host serving raw file contents.
func WithRawBaseURL(base string) Option {
	return func(c *GitHubClient) { c.rawBaseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *GitHubClient) { c.httpClient = client }
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *GitHubClient) { c.userAgent = ua }
}

// NewGitHubClient creates a client for owner/repo.
func NewGitHubClient(owner, repo string, opts ...Option) *GitHubClient {
	c := &GitHubClient{
		owner:      owner,
		repo:       repo,
		gitBaseURL: DefaultGitBaseURL,
		rawBaseURL: DefaultRawBaseURL,
		userAgent:  "docgate",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Repository returns "owner/repo".
func (c *GitHubClient) Repository() string {
	return c.owner + "/" + c.repo
}

// ListRefs fetches and parses the repository's reference advertisement.
func (c *GitHubClient) ListRefs(ctx context.Context) (*RefList, error) {
	u := fmt.Sprintf("%s/%s/%s.git/info/refs?service=git-upload-pack",
		c.gitBaseURL, url.PathEscape(c.owner), url.PathEscape(c.repo))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(body)

	refs, err := ParseRefAdvertisement(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse refs of %s: %w", c.Repository(), err)
	}
	return refs, nil
}

// FetchFile returns the bytes of path at revision.
func (c *GitHubClient) FetchFile(ctx context.Context, revision, path string) ([]byte, error) {
	if revision == "" {
		return nil, fmt.Errorf("source: empty revision for %q", path)
	}
	u := fmt.Sprintf("%s/%s/%s/%s/%s",
		c.rawBaseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), url.PathEscape(revision), escapePath(path))

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(body)

	data, err := io.ReadAll(io.LimitReader(body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("source: %s exceeds %d bytes", path, maxFileSize)
	}
	return data, nil
}

func (c *GitHubClient) get(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach content host: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func escapePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
