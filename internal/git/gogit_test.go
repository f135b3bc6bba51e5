package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lerian-mcp-git/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoGitClient_IsValidRepository(t *testing.T) {
	client := NewGoGitClient()
	repo := testutil.NewRepository(t)

	plain := t.TempDir()
	file := filepath.Join(plain, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	nested := filepath.Join(repo, "nested")
	require.NoError(t, os.Mkdir(nested, 0o750))

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"repository root", repo, true},
		{"plain directory", plain, false},
		{"regular file", file, false},
		{"missing path", filepath.Join(plain, "absent"), false},
		{"empty path", "", false},
		{"subdirectory of repository", nested, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, client.IsValidRepository(tt.path))
		})
	}
}

func TestGoGitClient_ListCommits(t *testing.T) {
	client := NewGoGitClient()
	repo := testutil.NewRepository(t,
		testutil.Commit{Message: "initial commit", Author: "Alice"},
		testutil.Commit{Message: "add parser\n\nlong body text", Author: "Bob"},
		testutil.Commit{Message: "fix bug", Author: "Carol"},
	)
	ctx := context.Background()

	t.Run("most recent first", func(t *testing.T) {
		commits, err := client.ListCommits(ctx, repo, 10)
		require.NoError(t, err)
		require.Len(t, commits, 3)

		assert.Equal(t, "fix bug", commits[0].ShortMessage)
		assert.Equal(t, "Carol", commits[0].AuthorName)
		assert.Equal(t, "add parser", commits[1].ShortMessage)
		assert.Equal(t, "initial commit", commits[2].ShortMessage)
		assert.True(t, commits[0].AuthoredAt.Equal(testutil.BaseTime.Add(2*time.Hour)))
		assert.Equal(t, time.Local, commits[0].AuthoredAt.Location())
	})

	t.Run("limit", func(t *testing.T) {
		commits, err := client.ListCommits(ctx, repo, 2)
		require.NoError(t, err)
		require.Len(t, commits, 2)
		assert.Equal(t, "fix bug", commits[0].ShortMessage)
		assert.Equal(t, "add parser", commits[1].ShortMessage)
	})

	t.Run("non-positive limit", func(t *testing.T) {
		for _, limit := range []int{0, -5} {
			commits, err := client.ListCommits(ctx, repo, limit)
			require.NoError(t, err)
			assert.Empty(t, commits)
		}
	})
}

func TestGoGitClient_ListCommits_EmptyRepository(t *testing.T) {
	client := NewGoGitClient()
	repo := testutil.NewRepository(t)

	commits, err := client.ListCommits(context.Background(), repo, 5)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestGoGitClient_ListCommits_NotARepository(t *testing.T) {
	client := NewGoGitClient()

	_, err := client.ListCommits(context.Background(), t.TempDir(), 5)
	assert.Error(t, err)
}

func TestShortMessage(t *testing.T) {
	tests := map[string]string{
		"subject":                       "subject",
		"subject\n":                     "subject",
		"subject\n\nbody":               "subject",
		"wrapped\nsubject line\n\nbody": "wrapped subject line",
		"\n\nleading newlines":          "leading newlines",
		"":                              "",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, ShortMessage(input), "%q", input)
	}
}
