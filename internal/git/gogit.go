package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// GoGitClient implements Client using go-git
type GoGitClient struct{}

// NewGoGitClient creates a go-git backed client
func NewGoGitClient() *GoGitClient { return &GoGitClient{} }

// IsValidRepository reports whether path is an existing directory that go-git
// opens as a repository. Parent directories are not searched.
func (g *GoGitClient) IsValidRepository(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = g.open(path)
	return err == nil
}

// ListCommits walks history from HEAD ordered by committer time, newest first
func (g *GoGitClient) ListCommits(ctx context.Context, path string, limit int) ([]CommitSummary, error) {
	commits := make([]CommitSummary, 0)
	if limit <= 0 {
		return commits, nil
	}

	repo, err := g.open(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		// Unborn branch: a repository without commits has an empty history
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return commits, nil
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash(), Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, CommitSummary{
			ShortMessage: ShortMessage(c.Message),
			AuthorName:   c.Author.Name,
			AuthoredAt:   c.Author.When.Local(),
		})
		if len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log: %w", err)
	}

	return commits, nil
}

func (g *GoGitClient) open(path string) (*gogit.Repository, error) {
	return gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: false})
}

// ShortMessage returns the commit summary: the first paragraph of message
// with its lines joined by single spaces.
func ShortMessage(message string) string {
	message = strings.TrimLeft(message, "\r\n")
	if idx := strings.Index(message, "\n\n"); idx >= 0 {
		message = message[:idx]
	}
	lines := strings.Split(message, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}
