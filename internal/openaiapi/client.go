// Package openaiapi holds the REST plumbing shared by the OpenAI and Azure
// OpenAI embedding and chat clients: endpoint URLs, auth headers, retries and
// error decoding.
package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Flavor selects how URLs and credentials are laid out.
type Flavor string

const (
	// OpenAI is the direct API: <base>/<operation> with a Bearer token.
	OpenAI Flavor = "openai"
	// Azure is Azure OpenAI: <endpoint>/openai/deployments/<deployment>/<operation>?api-version=<v> with an api-key header.
	Azure Flavor = "azure"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
)

// Config configures a Client.
type Config struct {
	Flavor     Flavor
	BaseURL    string
	APIKey     string
	APIVersion string
	Deployment string
	Timeout    time.Duration
	MaxRetries int
}

// Client sends JSON requests to one OpenAI-compatible deployment.
type Client struct {
	cfg    Config
	client *http.Client
}

// APIError is a non-retryable error response.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Flavor == "" {
		cfg.Flavor = OpenAI
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	switch cfg.Flavor {
	case OpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL
		}
	case Azure:
		if cfg.BaseURL == "" || cfg.Deployment == "" || cfg.APIVersion == "" {
			return nil, errors.New("azure endpoint, deployment and api version are required")
		}
	default:
		return nil, fmt.Errorf("unknown flavor: %s", cfg.Flavor)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Flavor returns the configured flavor.
func (c *Client) Flavor() Flavor { return c.cfg.Flavor }

// URL returns the full URL for an operation such as "embeddings" or "chat/completions".
func (c *Client) URL(operation string) string {
	if c.cfg.Flavor == Azure {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s", c.cfg.BaseURL, c.cfg.Deployment, operation, c.cfg.APIVersion)
	}
	return c.cfg.BaseURL + "/" + operation
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Flavor == Azure {
		req.Header.Set("api-key", c.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}

// Post sends body to operation and decodes the response into out. Transport
// errors, 429 and 5xx responses are retried with backoff.
func (c *Client) Post(ctx context.Context, operation string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	url := c.URL(operation)
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("send request: %w", err)
			if err := c.backoff(ctx, attempt, retryDelay(attempt)); err != nil {
				return err
			}
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = decodeError(resp.StatusCode, payload)
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			if err := c.backoff(ctx, attempt, delay); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return decodeError(resp.StatusCode, payload)
		}
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := c.backoff(ctx, attempt, retryDelay(attempt)); err != nil {
				return err
			}
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeError(status int, payload []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(payload, &errResp)
	apiErr := &APIError{StatusCode: status, Type: errResp.Error.Type, Message: errResp.Error.Message}
	if apiErr.Type == "" && errResp.Error.Code != nil {
		apiErr.Type = fmt.Sprint(errResp.Error.Code)
	}
	return apiErr
}

// backoff sleeps before the next attempt; the final attempt returns at once.
func (c *Client) backoff(ctx context.Context, attempt int, d time.Duration) error {
	if attempt >= c.cfg.MaxRetries {
		return nil
	}
	return wait(ctx, d)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
