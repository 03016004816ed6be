package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ChangedFiles lists the paths that differ between two revisions of the
// repository in repoDir. Revisions may be commit hashes or branch names.
func ChangedFiles(repoDir, fromRev, toRev string) ([]string, error) {
	if repoDir == "" {
		return nil, fmt.Errorf("repo dir is empty")
	}
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	fromHash, err := resolveRev(repo, fromRev)
	if err != nil {
		return nil, err
	}
	toHash, err := resolveRev(repo, toRev)
	if err != nil {
		return nil, err
	}
	if fromHash == toHash {
		return nil, nil
	}

	fromCommit, err := repo.CommitObject(fromHash)
	if err != nil {
		return nil, fmt.Errorf("from commit: %w", err)
	}
	toCommit, err := repo.CommitObject(toHash)
	if err != nil {
		return nil, fmt.Errorf("to commit: %w", err)
	}

	patch, err := fromCommit.Patch(toCommit)
	if err != nil {
		return nil, fmt.Errorf("diff commits: %w", err)
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(patch.FilePatches()))
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		path := ""
		switch {
		case to != nil:
			path = to.Path()
		case from != nil:
			path = from.Path()
		}
		if path == "" {
			continue
		}
		path = strings.TrimPrefix(path, "./")
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func resolveRev(repo *git.Repository, rev string) (plumbing.Hash, error) {
	if rev == "" {
		return plumbing.Hash{}, fmt.Errorf("revision is empty")
	}
	if plumbing.IsHash(rev) {
		return plumbing.NewHash(rev), nil
	}

	candidates := []plumbing.ReferenceName{}
	if strings.HasPrefix(rev, "refs/") {
		candidates = append(candidates, plumbing.ReferenceName(rev))
	} else {
		candidates = append(candidates, plumbing.NewRemoteReferenceName("origin", rev))
		candidates = append(candidates, plumbing.NewBranchReferenceName(rev))
	}
	for _, name := range candidates {
		r, err := repo.Reference(name, true)
		if err == nil {
			return r.Hash(), nil
		}
	}
	return plumbing.Hash{}, fmt.Errorf("revision %q not found", rev)
}
