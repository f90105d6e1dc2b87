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
	"github.com/gopost/engine/internal/domain"
)

func TestTwitterAdapter_PublishText(t *testing.T) {
	var gotBody tweetBody
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "1755", "text": "hello world"},
		})
	}))
	defer api.Close()

	adapter := dispatch.NewTwitterAdapter(api.URL, api.URL, time.Second, nopLogger())

	resultURL, err := adapter.Publish(context.Background(), textJob("twitter"), `{"access_token":"tw-tok"}`)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if resultURL != "https://twitter.com/i/web/status/1755" {
		t.Errorf("resultURL = %q", resultURL)
	}
	if gotBody.Text != "hello world" {
		t.Errorf("tweet text = %q", gotBody.Text)
	}
	if gotBody.Media != nil {
		t.Errorf("text job must not attach media, got %+v", gotBody.Media)
	}
}

type tweetBody struct {
	Text  string `json:"text"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media"`
}

func TestTwitterAdapter_PublishWithMedia(t *testing.T) {
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/media/upload.json" {
			t.Errorf("unexpected upload path %s", r.URL.Path)
		}
		if got := r.FormValue("media_url"); got != "https://cdn/img.png" {
			t.Errorf("media_url = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"media_id_string": "m-42"})
	}))
	defer upload.Close()

	var gotBody tweetBody
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "1756"},
		})
	}))
	defer api.Close()

	adapter := dispatch.NewTwitterAdapter(api.URL, upload.URL, time.Second, nopLogger())

	mediaURL := "https://cdn/img.png"
	job := &domain.PublicationJob{
		ID:          "job-2",
		TenantID:    "tenant-1",
		Platform:    "twitter",
		ContentType: domain.ContentTypeTextImage,
		Body:        "look at this",
		MediaURL:    &mediaURL,
	}

	resultURL, err := adapter.Publish(context.Background(), job, `{"access_token":"tw-tok"}`)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if resultURL != "https://twitter.com/i/web/status/1756" {
		t.Errorf("resultURL = %q", resultURL)
	}
	if gotBody.Media == nil || len(gotBody.Media.MediaIDs) != 1 || gotBody.Media.MediaIDs[0] != "m-42" {
		t.Errorf("tweet media = %+v, want [m-42]", gotBody.Media)
	}
}

func TestTwitterAdapter_MediaUploadFailureAbortsTweet(t *testing.T) {
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upload.Close()

	tweeted := false
	api := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		tweeted = true
	}))
	defer api.Close()

	adapter := dispatch.NewTwitterAdapter(api.URL, upload.URL, time.Second, nopLogger())

	mediaURL := "https://cdn/img.png"
	job := &domain.PublicationJob{
		ID:          "job-3",
		ContentType: domain.ContentTypeImage,
		Body:        "pic",
		MediaURL:    &mediaURL,
	}

	_, err := adapter.Publish(context.Background(), job, `{"access_token":"tw-tok"}`)
	var pubErr *dispatch.PublishError
	if !errors.As(err, &pubErr) || pubErr.Kind != dispatch.KindAuth {
		t.Fatalf("Publish() error = %v, want auth error", err)
	}
	if tweeted {
		t.Error("tweet endpoint was called after a failed media upload")
	}
}
