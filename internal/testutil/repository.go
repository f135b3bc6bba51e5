// Package testutil builds fixture repositories for tests
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// Commit describes one fixture commit
type Commit struct {
	Message string
	Author  string
	When    time.Time
}

// BaseTime is the authored time of the first generated commit
var BaseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewRepository initializes a repository in a temp dir and records commits in
// order, so the last one is HEAD. It returns the repository root.
func NewRepository(t *testing.T, commits ...Commit) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	if len(commits) == 0 {
		return dir
	}

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for i, c := range commits {
		name := filepath.Join(dir, "history.log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString(c.Message + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, err = wt.Add("history.log")
		require.NoError(t, err)

		author := c.Author
		if author == "" {
			author = "Test Author"
		}
		when := c.When
		if when.IsZero() {
			when = BaseTime.Add(time.Duration(i) * time.Hour)
		}
		sig := &object.Signature{Name: author, Email: "author@example.com", When: when}

		_, err = wt.Commit(c.Message, &gogit.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
	}

	return dir
}

// Messages builds commits with the given messages and default authors/times
func Messages(messages ...string) []Commit {
	commits := make([]Commit, 0, len(messages))
	for _, m := range messages {
		commits = append(commits, Commit{Message: m})
	}
	return commits
}
