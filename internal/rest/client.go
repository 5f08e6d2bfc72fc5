// Package rest is the pull side of synchronization: one-shot snapshot
// fetches for dashboard previews and chat history.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mkrier/chatsync/internal/auth"
	"github.com/mkrier/chatsync/internal/model"
)

// Client talks to the read-only chat endpoints. Failures surface as an
// empty result plus the error; callers log and continue with the empty
// view rather than propagating.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      *auth.Token
}

// NewClient returns a pull client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken attaches a bearer token to every fetch.
func (c *Client) SetToken(t *auth.Token) {
	c.token = t
}

// DashboardChats fetches all chat previews for username.
func (c *Client) DashboardChats(ctx context.Context, username string) ([]model.ChatPreview, error) {
	endpoint := fmt.Sprintf("%s/chats/user/%s/chats", c.baseURL, url.PathEscape(username))

	// A missing "chats" key means the user has no chats, not an error.
	var body struct {
		Chats []model.ChatPreview `json:"chats"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	return body.Chats, nil
}

// ChatMessages fetches the message history of one chat for username.
func (c *Client) ChatMessages(ctx context.Context, username, chatID string) ([]model.Message, error) {
	endpoint := fmt.Sprintf("%s/chats/user/%s/chats/%s", c.baseURL, url.PathEscape(username), url.PathEscape(chatID))

	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	return body.Messages, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if c.token != nil && c.token.Expired() {
		return fmt.Errorf("internal/rest: access token expired, refusing GET %s", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("internal/rest: failed to build request for %s: %w", endpoint, err)
	}
	if c.token != nil {
		req.Header.Set("Authorization", "Bearer "+c.token.Raw())
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("internal/rest: GET %s failed: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("internal/rest: GET %s returned status %d", endpoint, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("internal/rest: could not decode response from %s: %w", endpoint, err)
	}

	return nil
}
