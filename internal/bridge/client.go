package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmpim/krist/internal/api"
	"github.com/tmpim/krist/internal/events"
)

// Client talks to a bridge server
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the bridge at baseURL
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish sends ev to every subscribed session and returns how many
// sessions it was queued for
func (c *Client) Publish(ctx context.Context, ev events.Event) (int, error) {
	var resp struct {
		Recipients int `json:"recipients"`
	}
	if err := c.post(ctx, "/publish", ev.Envelope(), &resp); err != nil {
		return 0, err
	}
	return resp.Recipients, nil
}

// SetMotd replaces the message of the day
func (c *Client) SetMotd(ctx context.Context, text string) error {
	return c.post(ctx, "/motd", map[string]string{"motd": text}, nil)
}

// SetSwitch turns a feature switch on or off
func (c *Client) SetSwitch(ctx context.Context, name string, enabled bool) error {
	return c.post(ctx, "/switches/"+name, map[string]bool{"enabled": enabled}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error     string `json:"error"`
			Message   string `json:"message"`
			Parameter string `json:"parameter"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("bridge returned status %d", resp.StatusCode)
		}
		return &api.Error{
			Status:    resp.StatusCode,
			Code:      e.Error,
			Message:   e.Message,
			Parameter: e.Parameter,
		}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
