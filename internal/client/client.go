// Package client talks to a running docqa server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/qa"
	"docqa/internal/server"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the /ask API. It implements qa.Answerer.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 2 * time.Minute}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask posts question and returns the answer with its sources.
func (c *Client) Ask(ctx context.Context, question string) (*qa.Answer, error) {
	var resp server.AskResponse
	req := server.AskRequest{Question: question, IncludeSources: true}
	if err := c.do(ctx, http.MethodPost, "/ask", req, &resp); err != nil {
		return nil, err
	}
	ans := &qa.Answer{Text: resp.Answer}
	for _, src := range resp.Sources {
		ans.Sources = append(ans.Sources, domain.SearchResult{
			Chunk: domain.Chunk{ChunkID: src.ChunkID, Source: src.Source, Page: src.Page, Text: src.Text},
			Score: src.Score,
		})
	}
	return ans, nil
}

// Answer implements qa.Answerer.
func (c *Client) Answer(ctx context.Context, question string) (*qa.Answer, error) {
	return c.Ask(ctx, question)
}

// Health returns the server's readiness message.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e server.ErrorResponse
		_ = json.Unmarshal(payload, &e)
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ qa.Answerer = (*Client)(nil)
