// Package git provides read-only repository access used by the operation registry.
package git

import (
	"context"
	"time"
)

// Client provides the version-control read capability.
// Implementations must not mutate the repository.
type Client interface {
	// IsValidRepository reports whether path is a repository root.
	IsValidRepository(path string) bool
	// ListCommits returns up to limit commits reachable from HEAD, most recent first.
	// limit <= 0 returns an empty slice without touching history.
	ListCommits(ctx context.Context, path string, limit int) ([]CommitSummary, error)
}

// CommitSummary is the per-request view of one commit
type CommitSummary struct {
	ShortMessage string
	AuthorName   string
	AuthoredAt   time.Time
}
