package dispatch_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gopost/engine/internal/dispatch"
)

func TestRegistry_Resolve(t *testing.T) {
	wp := dispatch.NewWordPressAdapter("", 0, nopLogger())
	registry := dispatch.NewRegistry(wp)

	adapter, err := registry.Resolve("wordpress")
	if err != nil {
		t.Fatalf("Resolve(wordpress) error = %v", err)
	}
	if adapter.Platform() != "wordpress" {
		t.Errorf("Platform() = %q, want wordpress", adapter.Platform())
	}

	_, err = registry.Resolve("myspace")
	if !errors.Is(err, dispatch.ErrUnsupportedPlatform) {
		t.Errorf("Resolve(myspace) error = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	registry := dispatch.NewRegistry()
	registry.Register(dispatch.NewWebhookAdapter("make", 0, nopLogger()))
	registry.Register(dispatch.NewWebhookAdapter("make", 0, nopLogger()))

	if got := len(registry.Platforms()); got != 1 {
		t.Errorf("Platforms() has %d entries, want 1", got)
	}
}

func TestPublishError_Message(t *testing.T) {
	testCases := []struct {
		name string
		err  *dispatch.PublishError
		want []string
	}{
		{
			name: "plain error carries platform and kind",
			err:  dispatch.NewPublishError("twitter", dispatch.KindAuth, "token expired"),
			want: []string{"twitter", "auth", "token expired"},
		},
		{
			name: "rate limited surfaces the retry-after hint",
			err: &dispatch.PublishError{
				Kind:       dispatch.KindRateLimited,
				Platform:   "twitter",
				Message:    "slow down",
				RetryAfter: 30 * time.Second,
			},
			want: []string{"rate_limited", "retry after 30s"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.err.Error()
			for _, fragment := range tc.want {
				if !strings.Contains(msg, fragment) {
					t.Errorf("Error() = %q, want it to contain %q", msg, fragment)
				}
			}
		})
	}
}
