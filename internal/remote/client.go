// Package remote implements the boundary to the rate-limited, schema-aware
// remote API. Every other component talks to the remote system through the
// API interface defined here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// API is the capability every adapter depends on: send one named operation
// with variables, decode the data payload into out.
type API interface {
	Query(ctx context.Context, operation string, variables map[string]any, out any) error
}

// Client is an HTTP client for the remote GraphQL-style API.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a client for the given endpoint. A zero timeout defaults
// to 30 seconds.
func NewClient(endpoint, accessToken string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type queryRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Query sends one operation to the remote API and decodes the data payload
// into out (ignored when out is nil). Rate-limit rejections come back as
// *ThrottledError, request-level rejections as *ValidationError, and
// network/HTTP failures as *TransportError. Malformed response bodies never
// panic; they surface as decode errors for the caller to record.
func (c *Client) Query(ctx context.Context, operation string, variables map[string]any, out any) error {
	reqBody, err := json.Marshal(queryRequest{Query: operation, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("X-Access-Token", c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &ThrottledError{Message: "HTTP 429 Too Many Requests"}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if !gjson.ValidBytes(body) {
		return fmt.Errorf("decode response: not valid JSON")
	}

	// Request-level errors ride alongside (or instead of) data. Throttling
	// is signalled via extensions.code, everything else is a validation
	// class failure.
	if errsField := gjson.GetBytes(body, "errors"); errsField.Exists() && len(errsField.Array()) > 0 {
		first := errsField.Array()[0]
		code := first.Get("extensions.code").String()
		message := first.Get("message").String()

		if code == "THROTTLED" || IsThrottled(fmt.Errorf("%s", message)) {
			return &ThrottledError{Message: message}
		}

		ve := &ValidationError{}
		for _, e := range errsField.Array() {
			ve.Errors = append(ve.Errors, FieldError{Message: e.Get("message").String()})
		}
		return ve
	}

	if out == nil {
		return nil
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return fmt.Errorf("decode response: empty data payload")
	}

	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		c.logger.Warn("Malformed data payload from remote API",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// accessCheckOperation is a minimal query used to verify the credentials
// before a batch starts.
const accessCheckOperation = `query { currentSession { id } }`

// CheckAccess verifies the caller's credentials with a cheap query. A
// failure here fails the whole job before any record is processed.
func CheckAccess(ctx context.Context, api API) error {
	var payload struct {
		CurrentSession struct {
			ID string `json:"id"`
		} `json:"currentSession"`
	}

	if err := api.Query(ctx, accessCheckOperation, nil, &payload); err != nil {
		return fmt.Errorf("access check failed: %w", err)
	}
	return nil
}
