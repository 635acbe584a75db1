package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/danielfsbarreto/crewai-expert/internal/config"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
)

var tracer = otel.Tracer("crewai-expert.source.github")

// ErrInvalidConfig indicates an unusable GitHub source configuration.
var ErrInvalidConfig = errors.New("invalid github source configuration")

// GitHubConfig locates the documentation inside a GitHub repository.
type GitHubConfig struct {
	// Token authenticates API calls. Optional for public repositories, but
	// unauthenticated clients are limited to 60 requests per hour.
	Token config.Secret

	// Owner and Repo identify the repository. Default: crewAIInc/crewAI.
	Owner string
	Repo  string

	// DocsPath and PrimaryLanguage form the listing prefix, e.g. "docs/en".
	DocsPath        string
	PrimaryLanguage string

	// Extensions is the file-extension allow-list. Default: .md, .mdx.
	Extensions []string

	// RequestsPerSecond throttles API calls proactively. Default: 10.
	RequestsPerSecond float64

	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
}

// ApplyDefaults sets default values for unset fields.
func (c *GitHubConfig) ApplyDefaults() {
	if c.Owner == "" {
		c.Owner = "crewAIInc"
	}
	if c.Repo == "" {
		c.Repo = "crewAI"
	}
	if c.DocsPath == "" {
		c.DocsPath = "docs"
	}
	if c.PrimaryLanguage == "" {
		c.PrimaryLanguage = "en"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".md", ".mdx"}
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
}

// Validate validates the configuration.
func (c GitHubConfig) Validate() error {
	if c.Owner == "" || c.Repo == "" {
		return fmt.Errorf("%w: owner and repo required", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfig)
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidConfig, ext)
		}
	}
	return nil
}

// PathPrefix returns the directory whose files are indexed.
func (c GitHubConfig) PathPrefix() string {
	return path.Join(c.DocsPath, c.PrimaryLanguage)
}

// GitHubSource serves documentation files from a GitHub repository.
//
// Listing resolves the default branch once and walks its tree recursively;
// content is then read at that same branch so a run sees one consistent ref.
type GitHubSource struct {
	client  *github.Client
	config  GitHubConfig
	limiter *rateLimiter
	logger  *zap.Logger

	mu  sync.RWMutex
	ref string
}

// NewGitHubSource creates a GitHub-backed Source.
func NewGitHubSource(ctx context.Context, cfg GitHubConfig, logger *zap.Logger) (*GitHubSource, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var httpClient *http.Client
	if cfg.Token.IsSet() {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		logger.Warn("github token not set, using unauthenticated client")
	}

	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
		}
		client.BaseURL = u
	}

	return &GitHubSource{
		client:  client,
		config:  cfg,
		limiter: newRateLimiter(cfg.RequestsPerSecond),
		logger:  logger,
	}, nil
}

// ListDocuments returns the paths of all allow-listed blobs under the
// configured prefix on the default branch, sorted.
func (s *GitHubSource) ListDocuments(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "GitHubSource.ListDocuments")
	defer span.End()

	repoID := s.config.Owner + "/" + s.config.Repo
	span.SetAttributes(attribute.String("repository", repoID))

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, indexerr.NewTransportError("get_repository", repoID, 0, err)
	}
	repo, resp, err := s.client.Repositories.Get(ctx, s.config.Owner, s.config.Repo)
	s.limiter.Update(resp)
	if err != nil {
		terr := transportError("get_repository", repoID, resp, err)
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		return nil, terr
	}
	branch := repo.GetDefaultBranch()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, indexerr.NewTransportError("get_tree", repoID, 0, err)
	}
	tree, resp, err := s.client.Git.GetTree(ctx, s.config.Owner, s.config.Repo, branch, true)
	s.limiter.Update(resp)
	if err != nil {
		terr := transportError("get_tree", repoID+"@"+branch, resp, err)
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		return nil, terr
	}
	if tree.GetTruncated() {
		s.logger.Warn("github tree listing truncated, some documents will be missing",
			zap.String("repository", repoID),
			zap.String("branch", branch),
		)
	}

	prefix := strings.TrimSuffix(s.config.PathPrefix(), "/") + "/"
	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if !strings.HasPrefix(p, prefix) || !s.allowed(p) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s.mu.Lock()
	s.ref = branch
	s.mu.Unlock()

	s.logger.Info("listed documents",
		zap.String("repository", repoID),
		zap.String("branch", branch),
		zap.String("prefix", prefix),
		zap.Int("count", len(paths)),
	)
	span.SetAttributes(attribute.Int("document_count", len(paths)))
	span.SetStatus(codes.Ok, "success")
	return paths, nil
}

// GetContent returns the decoded content of one file.
func (s *GitHubSource) GetContent(ctx context.Context, identifier string) (string, error) {
	ctx, span := tracer.Start(ctx, "GitHubSource.GetContent")
	defer span.End()
	span.SetAttributes(attribute.String("identifier", identifier))

	s.mu.RLock()
	ref := s.ref
	s.mu.RUnlock()

	if err := s.limiter.Wait(ctx); err != nil {
		return "", indexerr.NewTransportError("get_content", identifier, 0, err)
	}

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.config.Owner, s.config.Repo, identifier, opts)
	s.limiter.Update(resp)
	if err != nil {
		terr := transportError("get_content", identifier, resp, err)
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		return "", terr
	}
	if file == nil {
		return "", indexerr.NewTransportError("get_content", identifier, 0, errors.New("path is a directory, not a file"))
	}

	content, err := file.GetContent()
	if err != nil {
		return "", indexerr.NewTransportError("get_content", identifier, 0, fmt.Errorf("decode content: %w", err))
	}

	span.SetAttributes(attribute.Int("bytes", len(content)))
	span.SetStatus(codes.Ok, "success")
	return content, nil
}

func (s *GitHubSource) allowed(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, allowed := range s.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// transportError converts a go-github failure into a TransportError,
// marking rate-limit responses so run-level retry can recognise them.
func transportError(op, identifier string, resp *github.Response, err error) *indexerr.TransportError {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.Response.StatusCode
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	rateLimited := errors.As(err, &rateErr) || errors.As(err, &abuseErr) ||
		(status == http.StatusForbidden && resp != nil && resp.Rate.Limit > 0 && resp.Rate.Remaining == 0)
	if rateLimited {
		err = fmt.Errorf("%w: %w", indexerr.ErrRateLimited, err)
	}

	return indexerr.NewTransportError(op, identifier, status, err)
}

// Ensure GitHubSource implements Source.
var _ Source = (*GitHubSource)(nil)
