// Package credentials provides the multi-tenant credential cache that feeds
// dispatch. It keeps a decrypted in-memory copy of the credential store,
// split into a global map (shared keys) and a tenant map (per-tenant keys),
// and stays consistent with the store through coarse invalidation.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
	"github.com/gopost/engine/internal/metrics"
)

// ErrCredentialNotFound is returned when neither the cache nor the store has
// a credential for the requested scope.
var ErrCredentialNotFound = errors.New("credential not found")

const defaultStoreTimeout = 5 * time.Second

// Store is the durable credential store the cache is derived from. Secrets
// come back encrypted.
type Store interface {
	ListAll(ctx context.Context) ([]domain.CredentialRecord, error)
	GetByScope(ctx context.Context, scope domain.CredentialScope) (*domain.CredentialRecord, error)
}

// Decrypter turns a stored ciphertext into the plaintext secret.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Cache is the two-tier credential cache. Lookups are single map reads on
// the hot path; reloads build fresh maps and swap them in whole, so readers
// never observe a partially-updated map.
type Cache struct {
	store        Store
	decrypter    Decrypter
	tenantScoped map[string]bool // platforms with per-tenant credentials, fixed at startup
	storeTimeout time.Duration
	metrics      *metrics.Metrics
	logger       logger.Logger

	mu     sync.RWMutex
	global map[string]string // platform -> secret
	tenant map[string]string // tenantID:platform -> secret
}

// Config holds cache construction options.
type Config struct {
	// TenantScopedPlatforms lists the platforms whose credentials are
	// per-tenant. Everything else resolves against the global map.
	TenantScopedPlatforms []string

	// StoreTimeout bounds every call to the backing store.
	StoreTimeout time.Duration

	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
}

// NewCache creates an empty cache. Call Reload (or let the first misses fill
// it) before relying on hit latency.
func NewCache(store Store, decrypter Decrypter, cfg Config, log logger.Logger) *Cache {
	scoped := make(map[string]bool, len(cfg.TenantScopedPlatforms))
	for _, platform := range cfg.TenantScopedPlatforms {
		scoped[platform] = true
	}

	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	return &Cache{
		store:        store,
		decrypter:    decrypter,
		tenantScoped: scoped,
		storeTimeout: timeout,
		metrics:      cfg.Metrics,
		logger:       log,
		global:       make(map[string]string),
		tenant:       make(map[string]string),
	}
}

// ScopeFor returns the scope a lookup for (tenantID, platform) must use.
// Tenant-scoped platforms always key by tenant; global platforms always
// ignore the tenant argument.
func (c *Cache) ScopeFor(tenantID, platform string) domain.CredentialScope {
	if c.tenantScoped[platform] {
		return domain.TenantScope(tenantID, platform)
	}
	return domain.GlobalScope(platform)
}

// Resolve returns the decrypted secret for (tenantID, platform). On a cache
// miss it falls through to the store for that single scope key, populates the
// cache, and returns the result. Store calls are bounded by the configured
// timeout.
func (c *Cache) Resolve(ctx context.Context, tenantID, platform string) (string, error) {
	scope := c.ScopeFor(tenantID, platform)

	if secret, ok := c.lookup(scope); ok {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return secret, nil
	}

	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	c.logger.Debug("credential cache miss",
		logger.String("scope", scope.CacheKey()))

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	record, err := c.store.GetByScope(storeCtx, scope)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, scope.CacheKey())
	}
	if err != nil {
		return "", fmt.Errorf("credential store lookup %s: %w", scope.CacheKey(), err)
	}

	secret, err := c.decrypter.Decrypt(record.Secret)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %s: %w", scope.CacheKey(), err)
	}

	c.put(scope, secret)
	return secret, nil
}

// Reload fetches the full credential set, decrypts it, and atomically
// replaces both maps. On failure the previous contents are kept
// (stale-but-available) and the error is returned for the caller to surface.
func (c *Cache) Reload(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	records, err := c.store.ListAll(storeCtx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CacheReloadsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("list credentials: %w", err)
	}

	global := make(map[string]string)
	tenant := make(map[string]string)
	for i := range records {
		scope := records[i].Scope()
		secret, decErr := c.decrypter.Decrypt(records[i].Secret)
		if decErr != nil {
			// One bad row must not poison the whole reload.
			c.logger.Warn("skipping undecryptable credential",
				logger.String("scope", scope.CacheKey()),
				logger.Error(decErr))
			continue
		}
		if scope.IsGlobal() {
			global[scope.CacheKey()] = secret
		} else {
			tenant[scope.CacheKey()] = secret
		}
	}

	c.mu.Lock()
	c.global = global
	c.tenant = tenant
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheReloadsTotal.WithLabelValues("ok").Inc()
	}
	c.logger.Info("credential cache reloaded",
		logger.Int("global_keys", len(global)),
		logger.Int("tenant_keys", len(tenant)))
	return nil
}

// InvalidateAll discards and rebuilds the cache. It is the change-notification
// handler: any insert, update, or delete upstream triggers a wholesale reload.
// Coarse on purpose, credential changes are rare relative to dispatch volume.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.Reload(ctx)
}

// Sizes returns the current entry counts, for the stats endpoint.
func (c *Cache) Sizes() (global, tenant int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.global), len(c.tenant)
}

func (c *Cache) lookup(scope domain.CredentialScope) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if scope.IsGlobal() {
		secret, ok := c.global[scope.CacheKey()]
		return secret, ok
	}
	secret, ok := c.tenant[scope.CacheKey()]
	return secret, ok
}

func (c *Cache) put(scope domain.CredentialScope, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scope.IsGlobal() {
		c.global[scope.CacheKey()] = secret
	} else {
		c.tenant[scope.CacheKey()] = secret
	}
}
