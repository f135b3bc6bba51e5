package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mcperrors "lerian-mcp-git/internal/errors"
	"lerian-mcp-git/internal/git"
	"lerian-mcp-git/internal/logging"
	"lerian-mcp-git/internal/session"
	"lerian-mcp-git/internal/version"
)

// CommitTimeLayout is how authored times are rendered in commit listings
const CommitTimeLayout = "2006-01-02 15:04:05"

const commitsHint = "Use 'setrepo <path>'."

// Registry dispatches the four operations against an injected session
type Registry struct {
	session  *session.Session
	git      git.Client
	versions *version.Store
	logger   logging.Logger
}

// NewRegistry creates a registry. A nil logger is replaced by a no-op logger.
func NewRegistry(sess *session.Session, client git.Client, versions *version.Store, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Registry{
		session:  sess,
		git:      client,
		versions: versions,
		logger:   logger.WithComponent("tools"),
	}
}

// Session returns the session the registry operates on
func (r *Registry) Session() *session.Session {
	return r.session
}

// Describe returns the operation descriptors
func (r *Registry) Describe() []Descriptor {
	return Describe()
}

// Invoke runs the named operation with string arguments. Missing arguments
// are passed as empty strings.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]string) Result {
	switch name {
	case OpSetRepositoryPath:
		return r.SetRepositoryPath(ctx, args[ArgPath])
	case OpGetLatestCommits:
		return r.GetLatestCommits(ctx, args[ArgNumberOfCommits])
	case OpGetLatestVersion:
		return r.GetLatestVersion(ctx)
	case OpBumpPatchVersion:
		return r.BumpPatchVersion(ctx)
	default:
		return Failure(mcperrors.NewStandardError(mcperrors.ErrorCodeInvalidArgument,
			fmt.Sprintf("Unknown operation: %s", name),
			mcperrors.ValidationDetail{Field: "operation", Reason: "unknown", Value: name}))
	}
}

// SetRepositoryPath selects path when it is an existing repository root.
// The previous selection is kept on failure.
func (r *Registry) SetRepositoryPath(ctx context.Context, path string) Result {
	if !r.git.IsValidRepository(path) {
		r.logger.WarnContext(ctx, "Rejected repository path", "path", path)
		return Failure(mcperrors.NewInvalidRepositoryError(path))
	}

	ref := r.session.Select(path)
	r.logger.InfoContext(ctx, "Repository selected", "path", ref.Path)
	return Success(fmt.Sprintf("Repository path confirmed as: %s", ref.Path))
}

// GetLatestCommits lists up to countText commits from HEAD, newest first
func (r *Registry) GetLatestCommits(ctx context.Context, countText string) Result {
	path, ok := r.session.CurrentPath()
	if !ok {
		return Failure(mcperrors.NewNoRepositorySelectedError(commitsHint))
	}
	if !r.git.IsValidRepository(path) {
		return Failure(mcperrors.NewStaleRepositoryError(path))
	}

	count, err := strconv.Atoi(strings.TrimSpace(countText))
	if err != nil {
		return Failure(mcperrors.NewInvalidArgumentError(ArgNumberOfCommits, countText))
	}
	if count <= 0 {
		return Success("")
	}

	start := time.Now()
	commits, err := r.git.ListCommits(ctx, path, count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read commit history", "path", path, "error", err)
		return Failure(mcperrors.NewInternalError("Failed to read commit history", err))
	}
	r.logger.DebugContext(ctx, "Read commit history",
		"path", path, "requested", count, "returned", len(commits), "duration", time.Since(start).String())

	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, FormatCommit(c))
	}
	return Success(strings.Join(lines, "\n"))
}

// GetLatestVersion returns the trimmed version file content
func (r *Registry) GetLatestVersion(ctx context.Context) Result {
	path, ok := r.session.CurrentPath()
	if !ok {
		return Failure(mcperrors.NewNoRepositorySelectedError(""))
	}

	content, err := r.versions.Read(path)
	if err != nil {
		if errors.Is(err, mcperrors.ErrVersionFileMissing) {
			r.logger.DebugContext(ctx, "No version file", "path", path)
		} else {
			r.logger.ErrorContext(ctx, "Version read failed", "path", path, "error", err)
		}
		return Failure(err)
	}
	return Success(content)
}

// BumpPatchVersion increments the patch component of the version file
func (r *Registry) BumpPatchVersion(ctx context.Context) Result {
	path, ok := r.session.CurrentPath()
	if !ok {
		return Failure(mcperrors.NewNoRepositorySelectedError(""))
	}

	next, err := r.versions.BumpPatch(path)
	if err != nil {
		if errors.Is(err, mcperrors.ErrInvalidVersionFormat) || errors.Is(err, mcperrors.ErrParseFailure) {
			r.logger.WarnContext(ctx, "Version file is malformed", "path", path, "error", err)
		} else {
			r.logger.ErrorContext(ctx, "Version bump failed", "path", path, "error", err)
		}
		return Failure(err)
	}

	r.logger.InfoContext(ctx, "Version bumped", "path", path, "version", next.String())
	return Success(fmt.Sprintf("Version bumped to %s", next))
}

// FormatCommit renders one commit listing line
func FormatCommit(c git.CommitSummary) string {
	return fmt.Sprintf("- %s (by %s on %s)", c.ShortMessage, c.AuthorName, c.AuthoredAt.Format(CommitTimeLayout))
}
