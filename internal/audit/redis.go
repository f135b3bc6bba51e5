package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"lerian-mcp-git/internal/retry"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder appends events to a Redis stream
type RedisRecorder struct {
	client *redis.Client
	stream string
}

// NewRedisRecorder connects to addr and verifies the connection
func NewRedisRecorder(addr, stream string) (*RedisRecorder, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required for the audit recorder")
	}
	if stream == "" {
		return nil, fmt.Errorf("redis stream is required for the audit recorder")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRecorder{client: rdb, stream: stream}, nil
}

// Record appends the event with XADD
func (r *RedisRecorder) Record(ctx context.Context, event Event) error {
	values, err := streamValues(normalize(event))
	if err != nil {
		return err
	}

	if err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// redisSearchWindow bounds how many stream entries one search reads
const redisSearchWindow = 1000

// Search reads the newest stream entries and filters them with criteria
func (r *RedisRecorder) Search(ctx context.Context, criteria SearchCriteria) ([]Event, error) {
	messages, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", redisSearchWindow).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stream: %w", err)
	}

	events := []Event{}
	for _, msg := range messages {
		event, err := eventFromStream(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit entry %s: %w", msg.ID, err)
		}
		if !criteria.Matches(event) {
			continue
		}
		events = append(events, event)
		if criteria.Limit > 0 && len(events) >= criteria.Limit {
			break
		}
	}
	return events, nil
}

// Close closes the client
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}

func streamValues(event Event) (map[string]interface{}, error) {
	args, err := json.Marshal(event.Arguments)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to encode audit arguments: %w", err))
	}

	return map[string]interface{}{
		"id":          event.ID,
		"timestamp":   event.Timestamp.Format(time.RFC3339Nano),
		"operation":   event.Operation,
		"arguments":   string(args),
		"repository":  event.Repository,
		"success":     strconv.FormatBool(event.Success),
		"code":        event.Code,
		"message":     event.Message,
		"duration_ms": strconv.FormatInt(event.Duration.Milliseconds(), 10),
		"trace_id":    event.TraceID,
		"transport":   event.Transport,
	}, nil
}

func eventFromStream(values map[string]interface{}) (Event, error) {
	field := func(name string) string {
		v, _ := values[name].(string)
		return v
	}

	event := Event{
		ID:         field("id"),
		Operation:  field("operation"),
		Repository: field("repository"),
		Code:       field("code"),
		Message:    field("message"),
		TraceID:    field("trace_id"),
		Transport:  field("transport"),
	}

	ts, err := time.Parse(time.RFC3339Nano, field("timestamp"))
	if err != nil {
		return Event{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	event.Timestamp = ts

	if event.Success, err = strconv.ParseBool(field("success")); err != nil {
		return Event{}, fmt.Errorf("invalid success flag: %w", err)
	}

	ms, err := strconv.ParseInt(field("duration_ms"), 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("invalid duration: %w", err)
	}
	event.Duration = time.Duration(ms) * time.Millisecond

	if args := field("arguments"); args != "" && args != "null" {
		if err := json.Unmarshal([]byte(args), &event.Arguments); err != nil {
			return Event{}, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	return event, nil
}
