// Package dedup tracks successfully dispatched jobs in Redis so an
// at-least-once redelivery (terminal-state write lost after the platform
// call succeeded) does not post the same content twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gopost/engine/internal/logger"
)

// Tracker marks dispatched jobs with a TTL-bounded Redis key.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewTracker creates a tracker. The TTL only needs to outlive the window in
// which a stuck job could be re-dispatched.
func NewTracker(client *redis.Client, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

func (t *Tracker) key(jobID string) string {
	return fmt.Sprintf("dispatched:job:%s", jobID)
}

// LastResult returns the result URL of a previous successful dispatch, if
// one is recorded. Redis errors are logged and treated as "not dispatched",
// a duplicate post is preferable to dropping a publication when Redis flaps.
func (t *Tracker) LastResult(ctx context.Context, jobID string) (string, bool) {
	value, err := t.client.Get(ctx, t.key(jobID)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		t.logger.Error("redis error checking dispatch marker",
			logger.String("job_id", jobID),
			logger.Error(err))
		return "", false
	}
	return value, true
}

// MarkDispatched records that the job's platform call succeeded, keeping the
// result URL so a redelivery can complete the terminal write without a
// second platform call.
func (t *Tracker) MarkDispatched(ctx context.Context, jobID, resultURL string) error {
	if err := t.client.Set(ctx, t.key(jobID), resultURL, t.ttl).Err(); err != nil {
		t.logger.Error("redis error marking job dispatched",
			logger.String("job_id", jobID),
			logger.Error(err))
		return err
	}
	return nil
}

// Clear removes a job's dispatch marker.
func (t *Tracker) Clear(ctx context.Context, jobID string) error {
	if err := t.client.Del(ctx, t.key(jobID)).Err(); err != nil {
		return fmt.Errorf("clear dispatch marker: %w", err)
	}
	return nil
}
