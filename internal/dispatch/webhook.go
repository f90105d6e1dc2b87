package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

// PlatformMake is the platform identifier for the Make.com-style webhook
// adapter. The secret is the tenant's webhook URL; the automation scenario
// behind it fans the content out to whatever the tenant wired up.
const PlatformMake = "make"

// WebhookAdapter posts the job payload to a per-tenant webhook.
type WebhookAdapter struct {
	platform string
	client   *http.Client
	logger   logger.Logger
}

// NewWebhookAdapter creates a webhook adapter serving the given platform
// identifier. An empty platform defaults to PlatformMake.
func NewWebhookAdapter(platform string, timeout time.Duration, log logger.Logger) *WebhookAdapter {
	if platform == "" {
		platform = PlatformMake
	}
	return &WebhookAdapter{
		platform: platform,
		client:   newHTTPClient(timeout),
		logger:   log,
	}
}

// Platform implements Publisher.
func (a *WebhookAdapter) Platform() string { return a.platform }

// webhookSecret tolerates both a bare URL and a JSON bundle.
type webhookSecret struct {
	WebhookURL string `json:"webhook_url"`
}

type webhookPayload struct {
	Platform    string `json:"platform"`
	ContentID   string `json:"contentId"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	MediaURL    string `json:"media_url,omitempty"`
}

type webhookResponse struct {
	URL string `json:"url"`
}

// Publish delivers the payload to the webhook. The scenario's response URL
// becomes the result locator when it sends one; otherwise a URL-shaped
// response body is used as-is.
func (a *WebhookAdapter) Publish(ctx context.Context, job *domain.PublicationJob, secret string) (string, error) {
	webhookURL := resolveWebhookURL(secret)
	if webhookURL == "" {
		return "", NewPublishError(a.platform, KindAuth, "credential is not a webhook URL")
	}

	payload := webhookPayload{
		Platform:    a.platform,
		ContentID:   job.ID,
		Content:     job.Body,
		ContentType: string(job.ContentType),
	}
	if job.MediaURL != nil {
		payload.MediaURL = *job.MediaURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewPublishError(a.platform, KindUnknown, "marshal payload: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", NewPublishError(a.platform, KindValidation, "invalid webhook URL: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", transportError(a.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyResponse(a.platform, resp)
	}

	resultURL := extractResultURL(resp)
	a.logger.Debug("webhook delivered",
		logger.String("job_id", job.ID),
		logger.String("platform", a.platform))
	return resultURL, nil
}

func resolveWebhookURL(secret string) string {
	var bundle webhookSecret
	if err := json.Unmarshal([]byte(secret), &bundle); err == nil && bundle.WebhookURL != "" {
		return bundle.WebhookURL
	}
	if strings.HasPrefix(secret, "http://") || strings.HasPrefix(secret, "https://") {
		return secret
	}
	return ""
}

func extractResultURL(resp *http.Response) string {
	body := readBodySnippet(resp.Body)
	var parsed webhookResponse
	if err := json.Unmarshal([]byte(body), &parsed); err == nil && parsed.URL != "" {
		return parsed.URL
	}
	if strings.HasPrefix(body, "http://") || strings.HasPrefix(body, "https://") {
		return body
	}
	return ""
}
