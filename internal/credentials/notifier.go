package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

// DefaultChangeChannel is the pub/sub channel the credential-management
// service publishes to on any credential insert, update, or delete. The
// message payload is irrelevant; arrival alone triggers invalidation.
const DefaultChangeChannel = "credentials:changed"

const invalidateTimeout = 30 * time.Second

// Invalidator is the cache-side handler for change notifications.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Auditor receives a record when an invalidation fails and the cache keeps
// serving stale contents.
type Auditor interface {
	Record(ctx context.Context, tenantID string, kind domain.AuditEventKind, message string) error
}

// Notifier subscribes to the credential change feed and turns each event
// into one InvalidateAll call. Transport stays fully decoupled from cache
// logic: the cache never learns where events come from.
type Notifier struct {
	client  *redis.Client
	channel string
	cache   Invalidator
	audit   Auditor
	logger  logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewNotifier creates a notifier for the given channel. An empty channel
// name uses DefaultChangeChannel; audit may be nil.
func NewNotifier(client *redis.Client, channel string, cache Invalidator, audit Auditor, log logger.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &Notifier{
		client:   client,
		channel:  channel,
		cache:    cache,
		audit:    audit,
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start begins consuming change notifications.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	sub := n.client.Subscribe(ctx, n.channel)

	n.wg.Add(1)
	go n.run(ctx, sub)

	n.logger.Info("credential change notifier started",
		logger.String("channel", n.channel))
}

// Stop tears down the subscription and waits for the consumer goroutine.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	close(n.stopChan)
	n.wg.Wait()
	n.logger.Info("credential change notifier stopped")
}

func (n *Notifier) run(ctx context.Context, sub *redis.PubSub) {
	defer n.wg.Done()
	defer sub.Close()

	events := sub.Channel()
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				n.logger.Warn("credential change subscription closed")
				return
			}
			n.handleChange(ctx, msg)
		case <-n.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) handleChange(ctx context.Context, msg *redis.Message) {
	n.logger.Info("credential change detected, invalidating cache",
		logger.String("channel", msg.Channel))

	invCtx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()

	if err := n.cache.InvalidateAll(invCtx); err != nil {
		// Stale-but-available: the cache keeps serving its previous
		// contents and the next notification retries.
		n.logger.Error("credential cache invalidation failed", logger.Error(err))
		if n.audit != nil {
			if auditErr := n.audit.Record(invCtx, "", domain.AuditCredentialReloadError, err.Error()); auditErr != nil {
				n.logger.Error("audit record failed", logger.Error(auditErr))
			}
		}
	}
}
