package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

// PlatformWordPress is the platform identifier served by the WordPress
// adapter. Tenant-scoped: each tenant connects their own WordPress.com blog.
const PlatformWordPress = "wordpress"

const defaultWordPressBaseURL = "https://public-api.wordpress.com"

// wordPressSecret is the decrypted OAuth bundle stored for a tenant after
// the authorization-code exchange (performed elsewhere).
type wordPressSecret struct {
	AccessToken string `json:"access_token"`
	BlogID      string `json:"blog_id"`
	BlogURL     string `json:"blog_url"`
}

// WordPressAdapter publishes posts through the WordPress.com REST API.
type WordPressAdapter struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewWordPressAdapter creates the adapter. An empty baseURL targets the
// public WordPress.com API; tests point it at a local server.
func NewWordPressAdapter(baseURL string, timeout time.Duration, log logger.Logger) *WordPressAdapter {
	if baseURL == "" {
		baseURL = defaultWordPressBaseURL
	}
	return &WordPressAdapter{
		baseURL: baseURL,
		client:  newHTTPClient(timeout),
		logger:  log,
	}
}

// Platform implements Publisher.
func (a *WordPressAdapter) Platform() string { return PlatformWordPress }

type wordPressPostRequest struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

type wordPressPostResponse struct {
	ID  json.Number `json:"ID"`
	URL string      `json:"URL"`
}

// Publish creates a new post on the tenant's blog. Media jobs embed the
// media URL into the post body; WordPress fetches and sideloads it.
func (a *WordPressAdapter) Publish(ctx context.Context, job *domain.PublicationJob, secret string) (string, error) {
	var creds wordPressSecret
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return "", NewPublishError(PlatformWordPress, KindAuth, "malformed credential bundle")
	}
	if creds.AccessToken == "" || creds.BlogID == "" {
		return "", NewPublishError(PlatformWordPress, KindAuth, "credential bundle missing access token or blog id")
	}

	content := job.Body
	if job.ContentType.HasMedia() && job.MediaURL != nil {
		content = fmt.Sprintf("%s\n\n<img src=%q />", job.Body, *job.MediaURL)
	}

	payload, err := json.Marshal(wordPressPostRequest{
		Content: content,
		Status:  "publish",
	})
	if err != nil {
		return "", NewPublishError(PlatformWordPress, KindUnknown, "marshal post: "+err.Error())
	}

	url := fmt.Sprintf("%s/rest/v1.1/sites/%s/posts/new", a.baseURL, creds.BlogID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", NewPublishError(PlatformWordPress, KindUnknown, "create request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", transportError(PlatformWordPress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyResponse(PlatformWordPress, resp)
	}

	var post wordPressPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&post); err != nil {
		return "", NewPublishError(PlatformWordPress, KindUnknown, "decode response: "+err.Error())
	}
	if post.URL == "" {
		return "", NewPublishError(PlatformWordPress, KindUnknown, "response missing post URL")
	}

	a.logger.Debug("wordpress post created",
		logger.String("job_id", job.ID),
		logger.String("post_url", post.URL))
	return post.URL, nil
}
