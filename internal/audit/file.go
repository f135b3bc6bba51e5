package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lerian-mcp-git/internal/logging"
)

const (
	fileBufferSize    = 100
	fileFlushInterval = 30 * time.Second
	fileMaxSize       = 100 * 1024 * 1024
)

// FileRecorder buffers events and appends them as JSON lines to rotating files
type FileRecorder struct {
	baseDir     string
	currentFile *os.File
	mu          sync.Mutex
	buffer      []Event
	maxFileSize int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileRecorder creates baseDir if needed and opens the first audit file
func NewFileRecorder(baseDir string) (*FileRecorder, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	r := &FileRecorder{
		baseDir:     baseDir,
		buffer:      make([]Event, 0, fileBufferSize),
		maxFileSize: fileMaxSize,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if err := r.rotateFile(); err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	go r.flushLoop(fileFlushInterval)
	return r, nil
}

// Record buffers an event, flushing when the buffer is full
func (r *FileRecorder) Record(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return fmt.Errorf("audit recorder is closed")
	}

	r.buffer = append(r.buffer, normalize(event))
	if len(r.buffer) >= fileBufferSize {
		return r.flush()
	}
	return nil
}

// Flush writes buffered events to disk
func (r *FileRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *FileRecorder) flush() error {
	if len(r.buffer) == 0 || r.currentFile == nil {
		return nil
	}

	if info, err := r.currentFile.Stat(); err == nil && info.Size() > r.maxFileSize {
		if err := r.rotateFile(); err != nil {
			return err
		}
	}

	encoder := json.NewEncoder(r.currentFile)
	var firstErr error
	for _, event := range r.buffer {
		if err := encoder.Encode(event); err != nil {
			logging.Error("Failed to write audit event", "error", err, "event_id", event.ID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.buffer = r.buffer[:0]
	return firstErr
}

func (r *FileRecorder) flushLoop(interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				logging.Error("Periodic audit flush failed", "error", err)
			}
		case <-r.stop:
			return
		}
	}
}

func (r *FileRecorder) rotateFile() error {
	if r.currentFile != nil {
		_ = r.currentFile.Close()
	}

	filename := fmt.Sprintf("audit_%s.jsonl", time.Now().Format("20060102_150405.000000"))
	fullPath := filepath.Join(r.baseDir, filename)

	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path built from configured dir and timestamp
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	r.currentFile = file
	return nil
}

// Search scans every audit file in the directory for matching events, newest first
func (r *FileRecorder) Search(_ context.Context, criteria SearchCriteria) ([]Event, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit files: %w", err)
	}

	events := []Event{}
	for _, file := range files {
		if file.IsDir() || !isAuditFile(file.Name()) {
			continue
		}
		fileEvents, err := r.searchFile(file.Name(), criteria)
		if err != nil {
			logging.Error("Failed to search audit file", "file", file.Name(), "error", err)
			continue
		}
		events = append(events, fileEvents...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if criteria.Limit > 0 && len(events) > criteria.Limit {
		events = events[:criteria.Limit]
	}
	return events, nil
}

func (r *FileRecorder) searchFile(filename string, criteria SearchCriteria) ([]Event, error) {
	cleanPath := filepath.Clean(filepath.Join(r.baseDir, filename))
	if !strings.HasPrefix(cleanPath, filepath.Clean(r.baseDir)) {
		return nil, fmt.Errorf("invalid filename")
	}

	file, err := os.Open(cleanPath) // #nosec G304 -- path is cleaned and validated
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	events := []Event{}
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			break
		}
		if criteria.Matches(event) {
			events = append(events, event)
		}
	}
	return events, nil
}

// Close stops the flush loop, writes pending events and closes the file
func (r *FileRecorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		<-r.done

		r.mu.Lock()
		defer r.mu.Unlock()

		err = r.flush()
		if cerr := r.currentFile.Close(); err == nil {
			err = cerr
		}
		r.currentFile = nil
	})
	return err
}

func isAuditFile(filename string) bool {
	return strings.HasPrefix(filename, "audit_") && filepath.Ext(filename) == ".jsonl"
}
