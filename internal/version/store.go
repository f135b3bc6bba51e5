// Package version reads and bumps the semantic version file kept at a repository root.
package version

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	mcperrors "lerian-mcp-git/internal/errors"
)

// Defaults used when the store is built without explicit settings
const (
	DefaultFileName = "version.txt"
	DefaultSeed     = "1.0.0"
)

// Record is a major.minor.patch triple
type Record struct {
	Major uint64
	Minor uint64
	Patch uint64
}

// String renders the record as "<major>.<minor>.<patch>"
func (r Record) String() string {
	return fmt.Sprintf("%d.%d.%d", r.Major, r.Minor, r.Patch)
}

// NextPatch returns r with the patch component incremented by one
func (r Record) NextPatch() Record {
	return Record{Major: r.Major, Minor: r.Minor, Patch: r.Patch + 1}
}

// Parse converts trimmed version text into a Record. Text that does not split
// into exactly three parts is an INVALID_VERSION_FORMAT error; a part that is
// not a base-10 non-negative integer is a PARSE_FAILURE error.
func Parse(text string) (Record, error) {
	text = strings.TrimSpace(text)
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return Record{}, mcperrors.NewInvalidVersionFormatError(text)
	}

	values := make([]uint64, 3)
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Record{}, mcperrors.NewParseFailureError(part)
		}
		values[i] = v
	}

	return Record{Major: values[0], Minor: values[1], Patch: values[2]}, nil
}

// Store reads and writes the version file inside a repository directory
type Store struct {
	fileName string
	seed     string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store for fileName seeded with seed. Empty values fall
// back to DefaultFileName and DefaultSeed.
func NewStore(fileName, seed string) *Store {
	if fileName == "" {
		fileName = DefaultFileName
	}
	if seed == "" {
		seed = DefaultSeed
	}
	return &Store{
		fileName: fileName,
		seed:     seed,
		locks:    make(map[string]*sync.Mutex),
	}
}

// FileName returns the version file name
func (s *Store) FileName() string {
	return s.fileName
}

// Path returns the version file path for a repository root
func (s *Store) Path(repoPath string) string {
	return filepath.Join(repoPath, s.fileName)
}

// Read returns the trimmed version text without validating it
func (s *Store) Read(repoPath string) (string, error) {
	data, err := os.ReadFile(s.Path(repoPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", mcperrors.NewVersionFileMissingError(s.fileName)
		}
		return "", mcperrors.NewInternalError("Failed to read "+s.fileName, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write replaces the version file with the rendered record
func (s *Store) Write(repoPath string, record Record) error {
	lock := s.lockFor(repoPath)
	lock.Lock()
	defer lock.Unlock()

	return s.writeFile(repoPath, record.String())
}

// BumpPatch seeds a missing file, increments its patch component and writes
// the result back. The whole cycle holds the per-file lock. A malformed file,
// or one whose patch cannot be incremented, is left untouched.
func (s *Store) BumpPatch(repoPath string) (Record, error) {
	lock := s.lockFor(repoPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(s.Path(repoPath)); os.IsNotExist(err) {
		if err := s.writeFile(repoPath, s.seed); err != nil {
			return Record{}, err
		}
	}

	current, err := s.Read(repoPath)
	if err != nil {
		return Record{}, err
	}

	record, err := Parse(current)
	if err != nil {
		return Record{}, err
	}
	if record.Patch == math.MaxUint64 {
		return Record{}, mcperrors.NewParseFailureError(strconv.FormatUint(record.Patch, 10))
	}

	next := record.NextPatch()
	if err := s.writeFile(repoPath, next.String()); err != nil {
		return Record{}, err
	}

	return next, nil
}

// writeFile writes content through a temp file in the same directory and renames it into place
func (s *Store) writeFile(repoPath, content string) error {
	tmp, err := os.CreateTemp(repoPath, "."+s.fileName+".tmp-*")
	if err != nil {
		return mcperrors.NewInternalError("Failed to write "+s.fileName, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return mcperrors.NewInternalError("Failed to write "+s.fileName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return mcperrors.NewInternalError("Failed to write "+s.fileName, err)
	}
	if err := os.Chmod(tmpName, s.fileMode(repoPath)); err != nil {
		_ = os.Remove(tmpName)
		return mcperrors.NewInternalError("Failed to write "+s.fileName, err)
	}
	if err := os.Rename(tmpName, s.Path(repoPath)); err != nil {
		_ = os.Remove(tmpName)
		return mcperrors.NewInternalError("Failed to write "+s.fileName, err)
	}
	return nil
}

// fileMode returns the mode of the existing version file, or 0644 for a new one
func (s *Store) fileMode(repoPath string) os.FileMode {
	info, err := os.Stat(s.Path(repoPath))
	if err != nil {
		return 0o644 // #nosec G302 -- version file is meant to be committed and shared
	}
	return info.Mode().Perm()
}

func (s *Store) lockFor(repoPath string) *sync.Mutex {
	key := filepath.Clean(repoPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
