// Package dispatch hides per-platform publishing protocols behind one
// capability: Publish a job with a resolved secret and get back the
// platform's locator for the published artifact. The scheduler is
// polymorphic over this interface; platform-specific branching lives only in
// the adapters here.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopost/engine/internal/domain"
)

// ErrorKind classifies an adapter failure into the normalized taxonomy the
// scheduler and operators reason about.
type ErrorKind string

const (
	// KindAuth means the credential was rejected (invalid or expired).
	// Never retried automatically.
	KindAuth ErrorKind = "auth"

	// KindRateLimited means the platform throttled the call. RetryAfter
	// carries the platform's hint when it sent one.
	KindRateLimited ErrorKind = "rate_limited"

	// KindValidation means the platform rejected the payload itself.
	KindValidation ErrorKind = "validation"

	// KindTransient covers network failures and 5xx responses, safe to
	// retry later with a new job.
	KindTransient ErrorKind = "transient"

	// KindUnknown is everything the adapter could not classify.
	KindUnknown ErrorKind = "unknown"
)

// PublishError is the normalized failure every adapter surfaces.
type PublishError struct {
	Kind       ErrorKind
	Platform   string
	Message    string
	RetryAfter time.Duration // only set for KindRateLimited, zero when the platform sent no hint
}

func (e *PublishError) Error() string {
	if e.Kind == KindRateLimited && e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s: %s (retry after %s)", e.Platform, e.Kind, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
}

// NewPublishError builds a normalized adapter error.
func NewPublishError(platform string, kind ErrorKind, message string) *PublishError {
	return &PublishError{Kind: kind, Platform: platform, Message: message}
}

// Publisher is the per-platform publish capability. Publish blocks for the
// whole protocol (media pre-upload included, where the platform needs one)
// and returns the platform-assigned URL of the published artifact.
type Publisher interface {
	// Platform returns the identifier this adapter serves.
	Platform() string

	// Publish sends the job's payload using the given decrypted secret.
	Publish(ctx context.Context, job *domain.PublicationJob, secret string) (resultURL string, err error)
}

// ErrUnsupportedPlatform is returned by the registry when no adapter is
// registered for a job's platform.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Registry maps platform identifiers to adapters. Populated once at startup;
// adding a platform means registering one more adapter, not touching the
// scheduler.
type Registry struct {
	adapters map[string]Publisher
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Publisher) *Registry {
	r := &Registry{adapters: make(map[string]Publisher, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Register adds or replaces the adapter for its platform.
func (r *Registry) Register(a Publisher) {
	r.adapters[a.Platform()] = a
}

// Resolve returns the adapter for a platform.
func (r *Registry) Resolve(platform string) (Publisher, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return a, nil
}

// Platforms lists the registered platform identifiers.
func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		platforms = append(platforms, p)
	}
	return platforms
}
