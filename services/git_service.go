package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// ErrLibraryDisabled is returned when no library path is configured.
var ErrLibraryDisabled = errors.New("prompt library is not configured")

// GitService commits finished prompts into a local git repository, one
// markdown file per prompt under prompts/.
type GitService struct {
	path        string
	authorName  string
	authorEmail string
	logger      *zap.Logger

	mu sync.Mutex
}

func NewGitService(path, authorName, authorEmail string, logger *zap.Logger) *GitService {
	if authorName == "" {
		authorName = "promptsmith"
	}
	if authorEmail == "" {
		authorEmail = "promptsmith@localhost"
	}
	return &GitService{path: path, authorName: authorName, authorEmail: authorEmail, logger: logger.Named("library")}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a prompt name into a file name stem.
func Slug(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	if s == "" {
		s = "prompt"
	}
	return s
}

// Publish writes content to prompts/<slug>.md and commits it. The repository
// is created on first use. It returns the commit hash.
func (g *GitService) Publish(name, content, message string) (string, error) {
	if g.path == "" {
		return "", ErrLibraryDisabled
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := git.PlainOpen(g.path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		g.logger.Info("Initializing prompt library", zap.String("path", g.path))
		repo, err = git.PlainInit(g.path, false)
	}
	if err != nil {
		return "", fmt.Errorf("opening prompt library: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("opening worktree: %w", err)
	}

	file := "prompts/" + Slug(name) + ".md"
	if err := util.WriteFile(wt.Filesystem, file, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", file, err)
	}
	if _, err := wt.Add(file); err != nil {
		return "", fmt.Errorf("staging %s: %w", file, err)
	}
	if message == "" {
		message = "Update " + file
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            &object.Signature{Name: g.authorName, Email: g.authorEmail, When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("committing %s: %w", file, err)
	}
	g.logger.Info("Prompt published", zap.String("file", file), zap.String("commit", hash.String()))
	return hash.String(), nil
}
