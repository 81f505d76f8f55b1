package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"

	"promptsmith/config"
	"promptsmith/prompts"
)

// ErrRulesUnavailable wraps every failure to load the rules document.
var ErrRulesUnavailable = errors.New("could not load the prompt-engineering rules document")

// RulesSource fetches the raw rules document.
type RulesSource interface {
	Fetch(ctx context.Context) (string, error)
	Describe() string
}

// RulesService caches the rules document for the process lifetime. Only a
// successful load is cached; a failed load is retried on the next call.
type RulesService struct {
	source RulesSource
	logger *zap.Logger

	mu    sync.Mutex
	rules string
	ok    bool
}

func NewRulesService(source RulesSource, logger *zap.Logger) *RulesService {
	return &RulesService{source: source, logger: logger.Named("rules")}
}

// NewRulesSource builds the source selected by cfg.
func NewRulesSource(cfg config.RulesConfig) (RulesSource, error) {
	switch cfg.Source {
	case "", "embedded":
		return EmbeddedRules{}, nil
	case "file":
		return FileRules{Path: cfg.Path}, nil
	case "url":
		return URLRules{URL: cfg.URL, Client: http.DefaultClient}, nil
	case "git":
		return GitRules{URL: cfg.URL, Ref: cfg.GitRef, Path: cfg.Path, Username: cfg.GitUser, Password: cfg.GitPAT}, nil
	}
	return nil, fmt.Errorf("unknown rules source %q", cfg.Source)
}

// Rules returns the cached document, loading it on first use.
func (s *RulesService) Rules(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ok {
		return s.rules, nil
	}

	rules, err := s.source.Fetch(ctx)
	if err != nil {
		s.logger.Error("Error loading rules document", zap.String("source", s.source.Describe()), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrRulesUnavailable, err)
	}
	if strings.TrimSpace(rules) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrRulesUnavailable, s.source.Describe())
	}
	s.rules, s.ok = rules, true
	s.logger.Info("Rules document loaded", zap.String("source", s.source.Describe()), zap.Int("bytes", len(rules)))
	return rules, nil
}

// EmbeddedRules serves the document compiled into the binary.
type EmbeddedRules struct{}

func (EmbeddedRules) Fetch(context.Context) (string, error) { return prompts.DefaultRules(), nil }
func (EmbeddedRules) Describe() string                      { return "embedded" }

// FileRules reads the document from the local filesystem.
type FileRules struct {
	Path string
}

func (f FileRules) Fetch(context.Context) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (f FileRules) Describe() string { return "file:" + f.Path }

// URLRules fetches the document with a plain HTTP GET.
type URLRules struct {
	URL    string
	Client *http.Client
}

func (u URLRules) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := u.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch rules: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch rules: %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read rules: %w", err)
	}
	return string(b), nil
}

func (u URLRules) Describe() string { return "url:" + u.URL }

// GitRules shallow-clones a repository into memory and reads Path from HEAD.
type GitRules struct {
	URL      string
	Ref      string
	Path     string
	Username string
	Password string
}

func (g GitRules) Fetch(ctx context.Context) (string, error) {
	opts := &git.CloneOptions{
		URL:          g.URL,
		Depth:        1,
		SingleBranch: true,
	}
	if g.Ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Ref)
	}
	if g.Username != "" || g.Password != "" {
		opts.Auth = &githttp.BasicAuth{Username: g.Username, Password: g.Password}
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), memfs.New(), opts)
	if err != nil {
		return "", fmt.Errorf("cloning %s: %w", g.URL, err)
	}
	return readHeadFile(repo, g.Path)
}

func (g GitRules) Describe() string { return "git:" + g.URL + "#" + g.Path }

// readHeadFile returns the contents of path in the HEAD commit of repo.
func readHeadFile(repo *git.Repository, path string) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("loading HEAD commit: %w", err)
	}
	file, err := commit.File(path)
	if err != nil {
		return "", fmt.Errorf("reading %s at %s: %w", path, head.Hash(), err)
	}
	return file.Contents()
}
