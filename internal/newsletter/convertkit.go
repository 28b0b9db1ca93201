// Package newsletter subscribes buyers to ConvertKit tags.
package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultBaseURL = "https://api.convertkit.com"

var ErrNotConfigured = errors.New("convertkit client not configured: missing API secret")

// productTags maps checkout product names to ConvertKit tag ids.
var productTags = map[string]string{
	"vault":   "14843035",
	"upgrade": "14115500",
	"core":    "14115500",
	"premium": "14115500",
	"book":    "14115500",
}

// TagForProduct returns the tag buyers of product are added to.
func TagForProduct(product string) (string, bool) {
	tag, ok := productTags[strings.ToLower(strings.TrimSpace(product))]
	return tag, ok
}

type Client struct {
	apiSecret  string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(apiSecret string, opts ...Option) *Client {
	c := &Client{
		apiSecret:  apiSecret,
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API secret is set.
func (c *Client) Configured() bool {
	return c.apiSecret != ""
}

type subscribeRequest struct {
	APISecret string `json:"api_secret"`
	Email     string `json:"email"`
}

// Tag subscribes email to the given tag.
func (c *Client) Tag(ctx context.Context, tagID, email string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(subscribeRequest{APISecret: c.apiSecret, Email: email})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/tags/%s/subscribe", c.baseURL, url.PathEscape(tagID))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("convertkit API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}
