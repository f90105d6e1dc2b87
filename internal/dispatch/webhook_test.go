package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gopost/engine/internal/dispatch"
)

func TestWebhookAdapter_Publish(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"url": "https://made.example/run/9"})
	}))
	defer server.Close()

	adapter := dispatch.NewWebhookAdapter("make", time.Second, nopLogger())

	resultURL, err := adapter.Publish(context.Background(), textJob("make"), server.URL)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if resultURL != "https://made.example/run/9" {
		t.Errorf("resultURL = %q", resultURL)
	}
	if got["platform"] != "make" || got["contentId"] != "job-1" || got["content"] != "hello world" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookAdapter_SecretShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Accepted"))
	}))
	defer server.Close()

	adapter := dispatch.NewWebhookAdapter("", time.Second, nopLogger())

	testCases := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "bare URL", secret: server.URL},
		{name: "json bundle", secret: `{"webhook_url":"` + server.URL + `"}`},
		{name: "not a URL", secret: "hunter2", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.Publish(context.Background(), textJob("make"), tc.secret)
			if (err != nil) != tc.wantErr {
				t.Errorf("Publish() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				var pubErr *dispatch.PublishError
				if !errors.As(err, &pubErr) || pubErr.Kind != dispatch.KindAuth {
					t.Errorf("error = %v, want auth kind", err)
				}
			}
		})
	}
}

func TestWebhookAdapter_PlainResponseHasNoResultURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Accepted"))
	}))
	defer server.Close()

	adapter := dispatch.NewWebhookAdapter("make", time.Second, nopLogger())

	resultURL, err := adapter.Publish(context.Background(), textJob("make"), server.URL)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if resultURL != "" {
		t.Errorf("resultURL = %q, want empty for a plain acknowledgement", resultURL)
	}
}

func TestWebhookAdapter_ErrorStatusIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	adapter := dispatch.NewWebhookAdapter("make", time.Second, nopLogger())

	_, err := adapter.Publish(context.Background(), textJob("make"), server.URL)
	var pubErr *dispatch.PublishError
	if !errors.As(err, &pubErr) || pubErr.Kind != dispatch.KindValidation {
		t.Errorf("Publish() error = %v, want validation", err)
	}
}
