// Package client drives a remote SetPlayer server over its REST API. Prompts
// raised by the server are put to the prompter attached to the call's
// context and the request is retried with the answers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/claude/setplayer/internal/session"
)

// maxPrompts bounds the decision round trips of one operation.
const maxPrompts = 4

// Client calls the session endpoints of a SetPlayer server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error    string          `json:"error"`
	Decision *session.Prompt `json:"decision"`
}

// Open starts or resumes the session for planID, or an ad-hoc session when
// planID is empty.
func (c *Client) Open(ctx context.Context, planID, name string) (*session.View, bool, error) {
	var out struct {
		Resumed bool          `json:"resumed"`
		Session *session.View `json:"session"`
	}
	body := map[string]any{"planId": planID, "name": name}
	if err := c.send(ctx, http.MethodPost, "/api/v1/session", body, &out); err != nil {
		return nil, false, err
	}
	return out.Session, out.Resumed, nil
}

// View returns the live session.
func (c *Client) View(ctx context.Context) (*session.View, error) {
	var v session.View
	if err := c.send(ctx, http.MethodGet, "/api/v1/session", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// LogSet logs the active set.
func (c *Client) LogSet(ctx context.Context, in session.SetInput) (*session.View, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("client: encode set: %w", err)
	}
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("client: encode set: %w", err)
	}
	return c.viewOp(ctx, "/api/v1/session/log", body)
}

// Simple runs an argument-free operation named by its path below the
// session, e.g. "skip-set" or "rest/skip".
func (c *Client) Simple(ctx context.Context, op string) (*session.View, error) {
	return c.viewOp(ctx, "/api/v1/session/"+op, nil)
}

// Indexed runs an exercise operation ("skip", "defer" or "jump").
func (c *Client) Indexed(ctx context.Context, op string, index int) (*session.View, error) {
	return c.viewOp(ctx, "/api/v1/session/exercises/"+strconv.Itoa(index)+"/"+op, nil)
}

// ExtendRest adds seconds to the running rest.
func (c *Client) ExtendRest(ctx context.Context, seconds float64) (*session.View, error) {
	return c.viewOp(ctx, "/api/v1/session/rest/extend", map[string]any{"seconds": seconds})
}

// Finish ends the session.
func (c *Client) Finish(ctx context.Context, mode session.FinishMode) (*session.Result, *session.View, error) {
	var out struct {
		Result  *session.Result `json:"result"`
		Session *session.View   `json:"session"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/session/finish", map[string]any{"mode": mode}, &out); err != nil {
		return nil, nil, err
	}
	return out.Result, out.Session, nil
}

func (c *Client) viewOp(ctx context.Context, path string, body map[string]any) (*session.View, error) {
	var v session.View
	if err := c.send(ctx, http.MethodPost, path, body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// send issues the request and decodes a 2xx body into out. A 409 carrying a
// decision is answered through session.Ask and the request is repeated.
func (c *Client) send(ctx context.Context, method, path string, body map[string]any, out any) error {
	decisions := session.Decisions{}
	for i := 0; ; i++ {
		payload := make(map[string]any, len(body)+1)
		for k, v := range body {
			payload[k] = v
		}
		if len(decisions) > 0 {
			payload["decisions"] = decisions
		}

		status, data, err := c.do(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if status >= 200 && status < 300 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("client: decode %s: %w", path, err)
			}
			return nil
		}

		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		if status != http.StatusConflict || eb.Decision == nil {
			msg := eb.Error
			if msg == "" {
				msg = string(data)
			}
			return &APIError{Status: status, Message: msg}
		}
		if i == maxPrompts {
			return fmt.Errorf("client: %s: too many decisions", path)
		}
		r, err := session.Ask(ctx, *eb.Decision)
		if err != nil {
			return err
		}
		decisions[eb.Decision.Kind] = r
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload map[string]any) (int, []byte, error) {
	var rd io.Reader
	if method != http.MethodGet {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("client: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("client: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("client: read body: %w", err)
	}
	return resp.StatusCode, data, nil
}
