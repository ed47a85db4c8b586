// Package client is a Go SDK for talking to one actor node's HTTP surface.
//
// A Client wraps the three endpoints a node exposes:
//
//	client.Ask(ctx, "worker.ping", content)    -> synchronous result
//	client.Tell(ctx, "worker.ping", content)   -> durable, retried, fire-and-forget
//	client.Health(ctx)                         -> the node's /health document
//
// It hides HTTP, JSON, and the envelope wire shape behind a small Go API;
// it does not implement routing itself — the node it talks to resolves
// the destination actor the same way it would for a locally-submitted ask.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one actor node.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client bound to baseURL (e.g. "http://localhost:8000").
// A zero timeout falls back to 10s, since a network call in a distributed
// system must never be allowed to hang forever.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// WithToken returns a copy of c that authenticates with the given bearer
// token on every request.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type askRequest struct {
	ID      string         `json:"id"`
	Src     string         `json:"src"`
	Dst     string         `json:"dst"`
	Content map[string]any `json:"content"`
	IsAsk   bool           `json:"is_ask"`
}

type askResponse struct {
	Content map[string]any `json:"content"`
	Error   *ErrorPayload  `json:"error"`
}

// ErrorPayload is the normalized {kind, message, actor} shape a failed ask
// comes back as.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Actor   string `json:"actor,omitempty"`
}

func (e *ErrorPayload) Error() string {
	if e.Actor != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Actor, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Ask sends content to dst and blocks for its result.
func (c *Client) Ask(ctx context.Context, dst string, content map[string]any) (map[string]any, error) {
	body, _ := json.Marshal(askRequest{Src: "client", Dst: dst, Content: content, IsAsk: true})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ask request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ask response: %w", err)
	}
	var parsed askResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding ask response: %w", err)
	}
	if parsed.Error != nil {
		return nil, parsed.Error
	}
	return parsed.Content, nil
}

type notifyEnvelope struct {
	ID         string         `json:"id"`
	Src        string         `json:"src"`
	Dst        string         `json:"dst"`
	Content    map[string]any `json:"content"`
	RequireAck bool           `json:"require_ack,omitempty"`
}

type notifyResponse struct {
	Received []string `json:"received"`
}

// Tell sends content to dst with at-least-once delivery, blocking only
// until this node's /notify handler durably records it.
func (c *Client) Tell(ctx context.Context, dst string, content map[string]any) error {
	return c.notify(ctx, dst, content, true)
}

// Hope sends content to dst with no delivery guarantee beyond this one
// attempt.
func (c *Client) Hope(ctx context.Context, dst string, content map[string]any) error {
	return c.notify(ctx, dst, content, false)
}

func (c *Client) notify(ctx context.Context, dst string, content map[string]any, requireAck bool) error {
	env := notifyEnvelope{Src: "client", Dst: dst, Content: content, RequireAck: requireAck}
	body, _ := json.Marshal([]notifyEnvelope{env})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify request failed: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Health fetches the node's /health document as a raw map, since its
// shape varies with which components (storage kind, compactor) the node
// was configured with.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result map[string]any
	return result, json.NewDecoder(resp.Body).Decode(&result)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
}

// APIError carries the HTTP status and body of a non-2xx response that
// did not parse as a structured {error:{...}} payload.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var wrapped struct {
		Error ErrorPayload `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Kind != "" {
		return &wrapped.Error
	}
	return &APIError{Status: resp.StatusCode, Message: string(body)}
}
