// Package whatsapp integrates with the Evolution API gateway: sending
// messages out and coalescing bursts of inbound webhook messages into single
// conversational turns.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to an Evolution API deployment. Authentication is a static
// per-instance key sent in the apikey header.
type Client struct {
	baseURL string
	apiKeys map[string]string
	http    *http.Client
	logger  *zap.Logger
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func NewClient(baseURL string, apiKeys map[string]string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKeys: apiKeys,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// SendText delivers a text message to a phone number through the named
// instance. Transport failures come back as errors; callers decide whether
// the loss is fatal.
func (c *Client) SendText(ctx context.Context, instance, number, text string) error {
	body, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s/", c.baseURL, instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKeys[instance]; key != "" {
		req.Header.Set("apikey", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call evolution API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("evolution API returned status %s", resp.Status)
	}

	c.logger.Debug("message sent",
		zap.String("instance", instance),
		zap.String("number", number),
		zap.Int("status", resp.StatusCode))
	return nil
}
