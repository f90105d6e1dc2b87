package credentials_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gopost/engine/internal/credentials"
	"github.com/gopost/engine/internal/logger"
)

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) InvalidateAll(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestNotifier_InvalidatesOnChangeEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inv := &countingInvalidator{}
	notifier := credentials.NewNotifier(client, "", inv, nil, logger.NewNopLogger())

	ctx := context.Background()
	notifier.Start(ctx)
	defer notifier.Stop()

	// Publish returns the number of receivers; retry until the
	// subscription is established.
	waitFor(t, func() bool {
		return mr.Publish(credentials.DefaultChangeChannel, "updated") > 0
	})

	waitFor(t, func() bool { return inv.calls.Load() >= 1 })

	before := inv.calls.Load()
	mr.Publish(credentials.DefaultChangeChannel, "deleted")
	waitFor(t, func() bool { return inv.calls.Load() > before })
}

func TestNotifier_StartIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	notifier := credentials.NewNotifier(client, "creds", &countingInvalidator{}, nil, logger.NewNopLogger())

	ctx := context.Background()
	notifier.Start(ctx)
	notifier.Start(ctx)
	notifier.Stop()
	notifier.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
