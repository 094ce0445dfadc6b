package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultMetadataDir is the repository bookkeeping directory name.
const DefaultMetadataDir = ".git"

var (
	ErrNotRepository   = errors.New("not a git repository")
	ErrNotWorktreeRoot = errors.New("not the root of a git working tree")
)

// Repository is an opened working tree together with the location of its
// metadata directory.
type Repository struct {
	repo   *gogit.Repository
	Root   string
	GitDir string
}

// Open finds the repository containing path, walking up parent directories.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", abs, ErrNotRepository)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()
	gitDir := ResolveGitDir(root)
	if gitDir == "" {
		gitDir = filepath.Join(root, DefaultMetadataDir)
	}
	return &Repository{repo: repo, Root: root, GitDir: gitDir}, nil
}

// OpenRoot opens the repository whose working tree root is path. A path
// below the root is rejected with ErrNotWorktreeRoot, since the metadata
// directory would lie outside a tree watched from there.
func OpenRoot(path string) (*Repository, error) {
	repo, err := Open(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !samePath(abs, repo.Root) {
		return nil, fmt.Errorf("%s is inside %s: %w", abs, repo.Root, ErrNotWorktreeRoot)
	}
	return repo, nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	resolvedA, errA := filepath.EvalSymlinks(a)
	resolvedB, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && resolvedA == resolvedB
}

// MetadataDirName returns the metadata directory relative to the working
// tree root, or "" when it lives outside the tree (linked worktrees).
func (r *Repository) MetadataDirName() string {
	if r == nil {
		return ""
	}
	rel, err := filepath.Rel(r.Root, r.GitDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

// Branch reports the checked out branch, "detached@<hash>" for a detached
// HEAD, or the target branch of an unborn HEAD.
func (r *Repository) Branch() (string, error) {
	if r == nil || r.repo == nil {
		return "", ErrNotRepository
	}
	head, err := r.repo.Head()
	if err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", fmt.Errorf("read HEAD: %w", err)
		}
		symbolic, symErr := r.repo.Reference(plumbing.HEAD, false)
		if symErr != nil {
			return "", fmt.Errorf("read HEAD: %w", symErr)
		}
		return symbolic.Target().Short(), nil
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	hash := head.Hash().String()
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return "detached@" + hash, nil
}

// StatusSummary counts working tree entries by state.
type StatusSummary struct {
	Staged    int  `json:"staged"`
	Modified  int  `json:"modified"`
	Untracked int  `json:"untracked"`
	Clean     bool `json:"clean"`
}

func (r *Repository) Status() (StatusSummary, error) {
	if r == nil || r.repo == nil {
		return StatusSummary{}, ErrNotRepository
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return StatusSummary{}, fmt.Errorf("open worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return StatusSummary{}, fmt.Errorf("worktree status: %w", err)
	}
	summary := StatusSummary{}
	for _, entry := range status {
		switch {
		case entry.Worktree == gogit.Untracked:
			summary.Untracked++
			continue
		case entry.Staging != gogit.Unmodified:
			summary.Staged++
		}
		if entry.Worktree != gogit.Unmodified {
			summary.Modified++
		}
	}
	summary.Clean = summary.Staged == 0 && summary.Modified == 0 && summary.Untracked == 0
	return summary, nil
}

// ResolveGitDir resolves the metadata directory for a working directory,
// following a "gitdir:" pointer file when .git is not a directory.
func ResolveGitDir(workDir string) string {
	gitPath := filepath.Join(workDir, DefaultMetadataDir)
	info, err := os.Stat(gitPath)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		return gitPath
	}
	if !info.Mode().IsRegular() {
		return ""
	}
	contents, err := os.ReadFile(gitPath)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(contents))
	const prefix = "gitdir:"
	if !strings.HasPrefix(line, prefix) {
		return ""
	}
	gitDir := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if gitDir == "" {
		return ""
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workDir, gitDir)
	}
	return filepath.Clean(gitDir)
}
