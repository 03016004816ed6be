package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Syncer keeps a local checkout of the repository that carries the pool
// files.
type Syncer struct {
	url  string
	ref  string
	dir  string
	auth transport.AuthMethod
}

func NewSyncer(url, ref, dir string, auth transport.AuthMethod) *Syncer {
	return &Syncer{url: url, ref: ref, dir: dir, auth: auth}
}

func (s *Syncer) Enabled() bool {
	return s.url != ""
}

// Refresh clones the repository on first use, moves the worktree to the
// fetched tip of the configured branch and returns the pool files that
// changed since the previous checkout. A fresh clone reports every tracked
// file.
func (s *Syncer) Refresh(ctx context.Context) ([]string, error) {
	if s.url == "" {
		return nil, nil
	}
	before, _ := Head(s.dir)
	repo, err := s.sync(ctx)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}
	after := head.Hash().String()
	if before == "" {
		return trackedFiles(repo, head.Hash())
	}
	if before == after {
		return nil, nil
	}
	return ChangedFiles(s.dir, before, after)
}

func (s *Syncer) sync(ctx context.Context) (*git.Repository, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("repo dir is empty")
	}

	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(filepath.Dir(s.dir), 0o755); err != nil {
			return nil, fmt.Errorf("create repo parent: %w", err)
		}

		cloneOpts := &git.CloneOptions{URL: s.url, Auth: s.auth}
		if s.ref != "" {
			cloneOpts.ReferenceName = normalizeRef(s.ref)
			cloneOpts.SingleBranch = true
		}
		repo, err = git.PlainCloneContext(ctx, s.dir, false, cloneOpts)
		if err != nil {
			return nil, fmt.Errorf("clone repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	fetchOpts := &git.FetchOptions{
		Auth:     s.auth,
		RefSpecs: []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("fetch repo: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}

	tip, err := s.remoteTip(repo)
	if err != nil {
		return nil, err
	}
	if err := wt.Reset(&git.ResetOptions{Commit: tip, Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("reset to %s: %w", tip, err)
	}
	return repo, nil
}

// remoteTip resolves origin/<branch> for the configured ref, or for the
// branch currently checked out when no ref is configured.
func (s *Syncer) remoteTip(repo *git.Repository) (plumbing.Hash, error) {
	branch := strings.TrimPrefix(s.ref, "refs/heads/")
	if branch == "" {
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolve head: %w", err)
		}
		if !head.Name().IsBranch() {
			return plumbing.ZeroHash, fmt.Errorf("head of %s is detached; set sync.ref", s.dir)
		}
		branch = head.Name().Short()
	}
	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve origin/%s: %w", branch, err)
	}
	return ref.Hash(), nil
}

// Head returns the commit checked out in dir, or "" when dir is not a
// repository yet.
func Head(dir string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve head: %w", err)
	}
	return head.Hash().String(), nil
}

func trackedFiles(repo *git.Repository, hash plumbing.Hash) ([]string, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("head commit: %w", err)
	}
	iter, err := commit.Files()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	var out []string
	err = iter.ForEach(func(f *object.File) error {
		out = append(out, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func normalizeRef(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}
