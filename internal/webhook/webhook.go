// Package webhook delivers outbound JSON callbacks to external systems.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Action binds an expected event to an outbound callback. TargetURL is
// local dispatch metadata and is never part of the serialized payload.
type Action struct {
	TargetURL string          `json:"-" yaml:"api_url"`
	Object    string          `json:"object" yaml:"object"`
	Command   string          `json:"command" yaml:"command"`
	Data      json.RawMessage `json:"data" yaml:"data"`
}

// Client POSTs JSON payloads to webhook URLs.
type Client struct {
	http *http.Client
}

// NewClient creates a webhook client with a bounded request timeout.
func NewClient() *Client {
	return &Client{
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send POSTs the action's payload to its target URL. The action is
// serialized without the URL itself.
func (c *Client) Send(ctx context.Context, action Action) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}
	return c.Post(ctx, action.TargetURL, payload)
}

// Post delivers a raw JSON payload to the given URL.
func (c *Client) Post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
