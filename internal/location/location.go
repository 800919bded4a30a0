// Package location resolves the file that defines a task to a permalink in
// its hosted git repository: <https remote>/blob/<commit>/<path>.
package location

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// ErrUnsupportedRemote is returned for remote URLs that have no https form.
var ErrUnsupportedRemote = errors.New("unsupported git remote")

// ErrUntracked is returned for files with no commit history.
var ErrUntracked = errors.New("file has no commits")

// ToHTTPS converts a git remote URL to its https base URL without the
// .git suffix. scp-style (git@host:org/repo.git), ssh://git@host/... and
// https URLs are supported.
func ToHTTPS(remote string) (string, error) {
	remote = strings.TrimSpace(remote)

	var base string
	switch {
	case strings.HasPrefix(remote, "git@"):
		rest := strings.TrimPrefix(remote, "git@")
		if !strings.Contains(rest, ":") {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedRemote, remote)
		}
		base = "https://" + strings.Replace(rest, ":", "/", 1)
	case strings.HasPrefix(remote, "ssh://git@"):
		host, path, _ := strings.Cut(strings.TrimPrefix(remote, "ssh://git@"), "/")
		// The ssh port does not apply to https.
		if h, _, ok := strings.Cut(host, ":"); ok {
			host = h
		}
		base = "https://" + host + "/" + path
	case strings.HasPrefix(remote, "https://"):
		base = remote
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRemote, remote)
	}

	rest := strings.Trim(strings.TrimPrefix(base, "https://"), "/")
	rest = strings.TrimSuffix(rest, ".git")
	if rest == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRemote, remote)
	}
	return "https://" + rest, nil
}

// Locator resolves files inside git working trees.
type Locator struct {
	remote string
	logger *slog.Logger
}

// NewLocator creates a locator reading the named remote ("origin" if empty).
// If logger is nil, a discard logger is used.
func NewLocator(remote string, logger *slog.Logger) *Locator {
	if remote == "" {
		remote = git.DefaultRemoteName
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Locator{remote: remote, logger: logger}
}

// Resolve finds the repository containing path, its remote URL, the path
// relative to the repository root and the last commit touching the file.
func (l *Locator) Resolve(path string) (core.Location, error) {
	abs, err := canonical(path)
	if err != nil {
		return core.Location{}, err
	}

	repo, err := git.PlainOpenWithOptions(filepath.Dir(abs), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to open repository for %s: %w", path, err)
	}

	remote, err := repo.Remote(l.remote)
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to read remote %q: %w", l.remote, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return core.Location{}, fmt.Errorf("%w: remote %q has no URL", ErrUnsupportedRemote, l.remote)
	}
	repoURL, err := ToHTTPS(urls[0])
	if err != nil {
		return core.Location{}, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to open worktree: %w", err)
	}
	root, err := canonical(wt.Filesystem.Root())
	if err != nil {
		return core.Location{}, err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to compute repository path: %w", err)
	}
	rel = filepath.ToSlash(rel)

	commits, err := repo.Log(&git.LogOptions{FileName: &rel})
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to read history of %s: %w", rel, err)
	}
	defer commits.Close()

	last, err := commits.Next()
	if errors.Is(err, io.EOF) {
		return core.Location{}, fmt.Errorf("%w: %s", ErrUntracked, rel)
	}
	if err != nil {
		return core.Location{}, fmt.Errorf("failed to read history of %s: %w", rel, err)
	}

	l.logger.Debug("resolved source location", "path", rel, "commit", last.Hash.String())
	return core.Location{RepoURL: repoURL, CommitID: last.Hash.String(), Path: rel}, nil
}

// Locate returns the permalink URL for path.
func (l *Locator) Locate(path string) (string, error) {
	loc, err := l.Resolve(path)
	if err != nil {
		return "", err
	}
	return loc.URL(), nil
}

// canonical returns an absolute path with symlinks resolved.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return resolved, nil
}
