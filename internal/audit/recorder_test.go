package audit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"lerian-mcp-git/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(op string, success bool) Event {
	return Event{
		Operation:  op,
		Arguments:  map[string]string{"path": "/tmp/repo"},
		Repository: "/tmp/repo",
		Success:    success,
		Duration:   12 * time.Millisecond,
		Transport:  "stdio",
	}
}

func TestNormalize(t *testing.T) {
	e := normalize(Event{Operation: "GetLatestVersion"})
	assert.True(t, strings.HasPrefix(e.ID, "evt_"))
	assert.False(t, e.Timestamp.IsZero())

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e = normalize(Event{ID: "evt_x", Timestamp: fixed})
	assert.Equal(t, "evt_x", e.ID)
	assert.Equal(t, fixed, e.Timestamp)
}

func TestSearchCriteria_Matches(t *testing.T) {
	now := time.Now()
	event := Event{Operation: "BumpPatchVersion", Repository: "/r", Success: true, Timestamp: now}
	yes, no := true, false

	tests := []struct {
		name     string
		criteria SearchCriteria
		expected bool
	}{
		{"empty", SearchCriteria{}, true},
		{"operation match", SearchCriteria{Operations: []string{"GetLatestVersion", "BumpPatchVersion"}}, true},
		{"operation mismatch", SearchCriteria{Operations: []string{"GetLatestVersion"}}, false},
		{"repository mismatch", SearchCriteria{Repository: "/other"}, false},
		{"success match", SearchCriteria{Success: &yes}, true},
		{"success mismatch", SearchCriteria{Success: &no}, false},
		{"before start", SearchCriteria{StartTime: now.Add(time.Minute)}, false},
		{"after end", SearchCriteria{EndTime: now.Add(-time.Minute)}, false},
		{"inside window", SearchCriteria{StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Minute)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.criteria.Matches(event))
		})
	}
}

func TestNew(t *testing.T) {
	r, err := New(config.AuditConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, NoopRecorder{}, r)
	assert.NoError(t, r.Record(context.Background(), Event{}))
	assert.NoError(t, r.Close())

	r, err = New(config.AuditConfig{Enabled: true, Driver: config.AuditDriverFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileRecorder{}, r)
	require.NoError(t, r.Close())

	r, err = New(config.AuditConfig{Enabled: true, Driver: config.AuditDriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLRecorder{}, r)
	require.NoError(t, r.Close())

	_, err = New(config.AuditConfig{Enabled: true, Driver: "kafka"})
	assert.Error(t, err)

	_, err = New(config.AuditConfig{Enabled: true, Driver: config.AuditDriverRedis})
	assert.Error(t, err)
}

func TestFileRecorder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r, err := NewFileRecorder(dir)
	require.NoError(t, err)

	older := sampleEvent("SetRepositoryPath", true)
	older.Timestamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	newer := sampleEvent("BumpPatchVersion", false)
	newer.Timestamp = older.Timestamp.Add(time.Second)
	require.NoError(t, r.Record(ctx, older))
	require.NoError(t, r.Record(ctx, newer))

	events, err := r.Search(ctx, SearchCriteria{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "BumpPatchVersion", events[0].Operation, "newest first")
	assert.Equal(t, "SetRepositoryPath", events[1].Operation)
	assert.Equal(t, "/tmp/repo", events[1].Arguments["path"])
	assert.Equal(t, 12*time.Millisecond, events[1].Duration)

	failed := false
	events, err = r.Search(ctx, SearchCriteria{Success: &failed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BumpPatchVersion", events[0].Operation)

	events, err = r.Search(ctx, SearchCriteria{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Error(t, r.Record(ctx, sampleEvent("GetLatestVersion", true)))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, isAuditFile(files[0].Name()))
}

func TestFileRecorder_FlushesWhenBufferFull(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r, err := NewFileRecorder(dir)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	for i := 0; i < fileBufferSize; i++ {
		require.NoError(t, r.Record(ctx, sampleEvent("GetLatestCommits", true)))
	}

	r.mu.Lock()
	pending := len(r.buffer)
	r.mu.Unlock()
	assert.Zero(t, pending)
}

func TestSQLRecorder_SQLite(t *testing.T) {
	ctx := context.Background()

	r, err := NewSQLRecorder(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	first := sampleEvent("SetRepositoryPath", true)
	first.Timestamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := sampleEvent("BumpPatchVersion", false)
	second.Timestamp = first.Timestamp.Add(time.Minute)
	second.Code = "INVALID_VERSION_FORMAT"
	second.Message = "Invalid version format."

	require.NoError(t, r.Record(ctx, first))
	require.NoError(t, r.Record(ctx, second))

	events, err := r.Search(ctx, SearchCriteria{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "BumpPatchVersion", events[0].Operation)
	assert.False(t, events[0].Success)
	assert.Equal(t, "INVALID_VERSION_FORMAT", events[0].Code)
	assert.Equal(t, "Invalid version format.", events[0].Message)
	assert.Equal(t, "/tmp/repo", events[1].Arguments["path"])
	assert.Equal(t, 12*time.Millisecond, events[1].Duration)
	assert.True(t, events[1].Timestamp.Equal(first.Timestamp))

	events, err = r.Search(ctx, SearchCriteria{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	failed := false
	events, err = r.Search(ctx, SearchCriteria{Success: &failed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BumpPatchVersion", events[0].Operation)

	events, err = r.Search(ctx, SearchCriteria{Operations: []string{"SetRepositoryPath", "GetLatestVersion"}, Repository: "/tmp/repo"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "SetRepositoryPath", events[0].Operation)

	var searcher Searcher = r
	assert.NotNil(t, searcher)
}

func TestNewSQLRecorder_Validation(t *testing.T) {
	_, err := NewSQLRecorder("mysql", "dsn")
	assert.Error(t, err)

	_, err = NewSQLRecorder(DriverPostgres, "")
	assert.Error(t, err)
}

func TestSQLRecorder_Rebind(t *testing.T) {
	pg := &SQLRecorder{driver: DriverPostgres}
	assert.Equal(t, "SELECT $1, $2 WHERE a = $3", pg.rebind("SELECT ?, ? WHERE a = ?"))

	lite := &SQLRecorder{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestNewRedisRecorder_Validation(t *testing.T) {
	_, err := NewRedisRecorder("", "stream")
	assert.Error(t, err)

	_, err = NewRedisRecorder("localhost:6379", "")
	assert.Error(t, err)
}

func TestStreamValues(t *testing.T) {
	event := normalize(sampleEvent("GetLatestVersion", true))
	values, err := streamValues(event)
	require.NoError(t, err)

	assert.Equal(t, "GetLatestVersion", values["operation"])
	assert.Equal(t, "true", values["success"])
	assert.Equal(t, "12", values["duration_ms"])
	assert.Equal(t, `{"path":"/tmp/repo"}`, values["arguments"])
	assert.Equal(t, event.ID, values["id"])
}

func TestEventFromStream(t *testing.T) {
	event := normalize(sampleEvent("BumpPatchVersion", false))
	event.Code = "PARSE_FAILURE"
	values, err := streamValues(event)
	require.NoError(t, err)

	decoded, err := eventFromStream(values)
	require.NoError(t, err)
	assert.Equal(t, event.ID, decoded.ID)
	assert.True(t, decoded.Timestamp.Equal(event.Timestamp))
	assert.Equal(t, "PARSE_FAILURE", decoded.Code)
	assert.False(t, decoded.Success)
	assert.Equal(t, 12*time.Millisecond, decoded.Duration)
	assert.Equal(t, "/tmp/repo", decoded.Arguments["path"])

	values["success"] = "maybe"
	_, err = eventFromStream(values)
	assert.Error(t, err)
}

func TestSearch_UnsupportedRecorder(t *testing.T) {
	_, err := Search(context.Background(), NoopRecorder{}, SearchCriteria{})
	assert.ErrorIs(t, err, ErrSearchUnsupported)
}
