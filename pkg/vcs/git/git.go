package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrOutsideWorktree is returned when a file to commit is not inside the
// repository worktree.
var ErrOutsideWorktree = errors.New("file is outside the worktree")

// ErrNotInitialized is returned when Init has not been called.
var ErrNotInitialized = errors.New("repository not initialized")

// Status represents Git state following a commit attempt.
type Status struct {
	Committed bool   `json:"committed"`
	Pending   bool   `json:"pending"`
	Hash      string `json:"hash,omitempty"`
}

// Repo describes the operations needed by the daemon.
type Repo interface {
	Init(ctx context.Context) error
	Commit(ctx context.Context, message string, files ...string) (Status, error)
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
}

// FilesystemRepo is a worktree on disk driven through go-git.
type FilesystemRepo struct {
	Path        string
	Branch      string
	RemoteName  string
	RemoteURL   string
	AuthorName  string
	AuthorEmail string

	repo *gogit.Repository
}

// Init opens the repository at Path, creating it when missing, and makes
// sure the configured remote exists.
func (r *FilesystemRepo) Init(ctx context.Context) error {
	_ = ctx
	repo, err := gogit.PlainOpen(r.Path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(r.Path, false)
		if err == nil {
			head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(r.branch()))
			err = repo.Storer.SetReference(head)
		}
	}
	if err != nil {
		return fmt.Errorf("open repository %s: %w", r.Path, err)
	}
	if r.RemoteURL != "" {
		if _, err := repo.Remote(r.remote()); errors.Is(err, gogit.ErrRemoteNotFound) {
			if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: r.remote(), URLs: []string{r.RemoteURL}}); err != nil {
				return fmt.Errorf("create remote: %w", err)
			}
		} else if err != nil {
			return err
		}
	}
	r.repo = repo
	return nil
}

// Commit stages files (every change when none are given) and records a
// commit. A clean worktree produces no commit.
func (r *FilesystemRepo) Commit(ctx context.Context, message string, files ...string) (Status, error) {
	_ = ctx
	if r.repo == nil {
		return Status{}, ErrNotInitialized
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, err
	}
	if len(files) == 0 {
		if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
			return Status{}, err
		}
	}
	for _, f := range files {
		rel, err := r.relative(f)
		if err != nil {
			return Status{}, err
		}
		if _, err := wt.Add(rel); err != nil {
			return Status{}, fmt.Errorf("stage %s: %w", rel, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return Status{}, err
	}
	if !staged(status) {
		return Status{Pending: !status.IsClean()}, nil
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: r.AuthorName, Email: r.AuthorEmail, When: time.Now()},
	})
	if err != nil {
		return Status{}, err
	}
	after, err := wt.Status()
	if err != nil {
		return Status{}, err
	}
	return Status{Committed: true, Pending: !after.IsClean(), Hash: hash.String()}, nil
}

// Push pushes to the configured remote. Nothing to push is not an error.
func (r *FilesystemRepo) Push(ctx context.Context) error {
	if r.repo == nil {
		return ErrNotInitialized
	}
	err := r.repo.PushContext(ctx, &gogit.PushOptions{RemoteName: r.remote()})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Pull fetches and fast-forward merges the configured branch.
func (r *FilesystemRepo) Pull(ctx context.Context) error {
	if r.repo == nil {
		return ErrNotInitialized
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    r.remote(),
		ReferenceName: plumbing.NewBranchReferenceName(r.branch()),
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// Contains reports whether path lies inside the worktree.
func (r *FilesystemRepo) Contains(path string) bool {
	_, err := r.relative(path)
	return err == nil
}

func (r *FilesystemRepo) relative(path string) (string, error) {
	root, err := filepath.Abs(r.Path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorktree, path)
	}
	return filepath.ToSlash(rel), nil
}

func (r *FilesystemRepo) branch() string {
	if r.Branch == "" {
		return "main"
	}
	return r.Branch
}

func (r *FilesystemRepo) remote() string {
	if r.RemoteName == "" {
		return gogit.DefaultRemoteName
	}
	return r.RemoteName
}

func staged(status gogit.Status) bool {
	for _, s := range status {
		if s.Staging != gogit.Unmodified && s.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}
