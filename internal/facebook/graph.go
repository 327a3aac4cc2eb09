// Package facebook implements the Facebook Messenger webhook and the parts
// of the Graph API the bot uses to answer.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/calamars-bot/calamars-go/internal/config"
	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// DefaultGraphURL is the Graph API base used when none is configured.
const DefaultGraphURL = "https://graph.facebook.com/v2.6"

// userInfoFields are the profile fields requested by GetUserInfo.
const userInfoFields = "first_name,last_name,profile_pic,locale,timezone,gender"

// maxGraphResponse caps how much of a Graph API response is read.
const maxGraphResponse = 1 << 20

// UserProfile is the public Messenger profile of a user.
type UserProfile struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	ProfilePic string  `json:"profile_pic"`
	Locale     string  `json:"locale"`
	Timezone   float64 `json:"timezone"`
	Gender     string  `json:"gender"`
}

// SendResult is the Send API response.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// Client calls the Graph API. Page tokens are passed per call so one client
// can serve several pages.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Graph API client. An empty baseURL means
// DefaultGraphURL; a nil httpClient gets config.PlatformAPIRequest as timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.PlatformAPIRequest}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// SendText sends a text message to a Messenger user.
func (c *Client) SendText(ctx context.Context, userID, text, pageToken string) (*SendResult, error) {
	if userID == "" {
		return nil, domerrors.NewValidationError("user_id", "cannot be empty")
	}
	payload := map[string]any{
		"recipient": map[string]string{"id": userID},
		"message":   map[string]string{"text": text},
	}
	var result SendResult
	if err := c.do(ctx, http.MethodPost, "/me/messages", pageToken, nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetUserInfo fetches the public profile of a Messenger user.
func (c *Client) GetUserInfo(ctx context.Context, userID, pageToken string) (*UserProfile, error) {
	if userID == "" {
		return nil, domerrors.NewValidationError("user_id", "cannot be empty")
	}
	query := url.Values{"fields": {userInfoFields}}
	var profile UserProfile
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(userID), pageToken, query, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SubscribePage subscribes the app to the webhook updates of the page the
// token belongs to. It must be done once per page.
func (c *Client) SubscribePage(ctx context.Context, pageToken string) error {
	var result struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/me/subscribed_apps", pageToken, nil, nil, &result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("facebook: page subscription was not acknowledged")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, pageToken string, query url.Values, payload, out any) error {
	if pageToken == "" {
		return fmt.Errorf("facebook: %w: page token", domerrors.ErrMissingCredentials)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", pageToken)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("facebook: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), body)
	if err != nil {
		return fmt.Errorf("facebook: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facebook: %s %s: %w", method, path, domerrors.RedactURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphResponse))
	if err != nil {
		return fmt.Errorf("facebook: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domerrors.NewAPIError("facebook", resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("facebook: decode response: %w", err)
		}
	}
	return nil
}
