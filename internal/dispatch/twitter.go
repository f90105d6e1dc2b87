package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gopost/engine/internal/domain"
	"github.com/gopost/engine/internal/logger"
)

// PlatformTwitter is the platform identifier served by the Twitter adapter.
// Tenant-scoped: tokens come from each tenant's OAuth2 connection.
const PlatformTwitter = "twitter"

const (
	defaultTwitterAPIBaseURL    = "https://api.twitter.com"
	defaultTwitterUploadBaseURL = "https://upload.twitter.com"
)

type twitterSecret struct {
	AccessToken string `json:"access_token"`
}

// TwitterAdapter publishes tweets through the v2 API. Jobs with media run a
// two-step protocol: upload the media first, then reference the returned
// media id in the tweet. Both steps sit behind the single Publish call.
type TwitterAdapter struct {
	apiBaseURL    string
	uploadBaseURL string
	client        *http.Client
	logger        logger.Logger
}

// NewTwitterAdapter creates the adapter. Empty base URLs target the public
// API; tests point them at local servers.
func NewTwitterAdapter(apiBaseURL, uploadBaseURL string, timeout time.Duration, log logger.Logger) *TwitterAdapter {
	if apiBaseURL == "" {
		apiBaseURL = defaultTwitterAPIBaseURL
	}
	if uploadBaseURL == "" {
		uploadBaseURL = defaultTwitterUploadBaseURL
	}
	return &TwitterAdapter{
		apiBaseURL:    apiBaseURL,
		uploadBaseURL: uploadBaseURL,
		client:        newHTTPClient(timeout),
		logger:        log,
	}
}

// Platform implements Publisher.
func (a *TwitterAdapter) Platform() string { return PlatformTwitter }

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// Publish posts the tweet and returns its canonical status URL.
func (a *TwitterAdapter) Publish(ctx context.Context, job *domain.PublicationJob, secret string) (string, error) {
	var creds twitterSecret
	if err := json.Unmarshal([]byte(secret), &creds); err != nil {
		return "", NewPublishError(PlatformTwitter, KindAuth, "malformed credential bundle")
	}
	if creds.AccessToken == "" {
		return "", NewPublishError(PlatformTwitter, KindAuth, "credential bundle missing access token")
	}

	tweet := tweetRequest{Text: job.Body}

	if job.ContentType.HasMedia() && job.MediaURL != nil {
		mediaID, err := a.uploadMedia(ctx, creds.AccessToken, *job.MediaURL)
		if err != nil {
			return "", err
		}
		tweet.Media = &tweetMedia{MediaIDs: []string{mediaID}}
	}

	payload, err := json.Marshal(tweet)
	if err != nil {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "marshal tweet: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiBaseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "create request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", transportError(PlatformTwitter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", classifyResponse(PlatformTwitter, resp)
	}

	var created tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "decode response: "+err.Error())
	}
	if created.Data.ID == "" {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "response missing tweet id")
	}

	resultURL := fmt.Sprintf("https://twitter.com/i/web/status/%s", created.Data.ID)
	a.logger.Debug("tweet created",
		logger.String("job_id", job.ID),
		logger.String("tweet_id", created.Data.ID))
	return resultURL, nil
}

// uploadMedia registers remote media with Twitter and returns the media id
// to attach to the tweet.
func (a *TwitterAdapter) uploadMedia(ctx context.Context, token, mediaURL string) (string, error) {
	form := url.Values{}
	form.Set("media_url", mediaURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.uploadBaseURL+"/1.1/media/upload.json", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "create upload request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", transportError(PlatformTwitter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyResponse(PlatformTwitter, resp)
	}

	var uploaded mediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "decode upload response: "+err.Error())
	}
	if uploaded.MediaIDString == "" {
		return "", NewPublishError(PlatformTwitter, KindUnknown, "upload response missing media id")
	}
	return uploaded.MediaIDString, nil
}
