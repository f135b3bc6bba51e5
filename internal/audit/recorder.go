// Package audit records every operation call made through a host surface.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lerian-mcp-git/internal/config"

	"github.com/google/uuid"
)

// Event is one recorded operation call
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Operation  string            `json:"operation"`
	Arguments  map[string]string `json:"arguments,omitempty"`
	Repository string            `json:"repository,omitempty"`
	Success    bool              `json:"success"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message,omitempty"`
	Duration   time.Duration     `json:"duration"`
	TraceID    string            `json:"trace_id,omitempty"`
	Transport  string            `json:"transport,omitempty"`
}

// Recorder persists events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Searcher is implemented by recorders that can read their events back
type Searcher interface {
	Search(ctx context.Context, criteria SearchCriteria) ([]Event, error)
}

// ErrSearchUnsupported is returned by Search for recorders without a read path
var ErrSearchUnsupported = errors.New("audit search is not available for the configured recorder")

// Search reads events back from rec, newest first
func Search(ctx context.Context, rec Recorder, criteria SearchCriteria) ([]Event, error) {
	searcher, ok := rec.(Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	return searcher.Search(ctx, criteria)
}

// normalize fills the ID and timestamp of an event when unset
func normalize(event Event) Event {
	if event.ID == "" {
		event.ID = "evt_" + uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// NoopRecorder discards events
type NoopRecorder struct{}

// Record implements Recorder
func (NoopRecorder) Record(context.Context, Event) error { return nil }

// Close implements Recorder
func (NoopRecorder) Close() error { return nil }

// New builds the recorder selected by cfg. A disabled config yields a NoopRecorder.
// Networked sinks are wrapped with WithRetry.
func New(cfg config.AuditConfig) (Recorder, error) {
	if !cfg.Enabled {
		return NoopRecorder{}, nil
	}

	switch cfg.Driver {
	case config.AuditDriverFile:
		return NewFileRecorder(cfg.Dir)
	case config.AuditDriverSQLite:
		return NewSQLRecorder(DriverSQLite, cfg.DSN)
	case config.AuditDriverPostgres:
		rec, err := NewSQLRecorder(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return WithRetry(rec, nil), nil
	case config.AuditDriverRedis:
		rec, err := NewRedisRecorder(cfg.RedisAddr, cfg.RedisStream)
		if err != nil {
			return nil, err
		}
		return WithRetry(rec, nil), nil
	default:
		return nil, fmt.Errorf("unknown audit driver: %s", cfg.Driver)
	}
}

// SearchCriteria filters recorded events
type SearchCriteria struct {
	StartTime  time.Time
	EndTime    time.Time
	Operations []string
	Repository string
	Success    *bool
	Limit      int
}

// Matches checks if an event matches the criteria
func (sc SearchCriteria) Matches(event Event) bool {
	if !sc.StartTime.IsZero() && event.Timestamp.Before(sc.StartTime) {
		return false
	}
	if !sc.EndTime.IsZero() && event.Timestamp.After(sc.EndTime) {
		return false
	}

	if len(sc.Operations) > 0 {
		found := false
		for _, op := range sc.Operations {
			if event.Operation == op {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if sc.Repository != "" && event.Repository != sc.Repository {
		return false
	}
	if sc.Success != nil && event.Success != *sc.Success {
		return false
	}

	return true
}
