// Package gateway is the HTTP client for the PetBook controller API. Every
// method is a stateless request: authenticated calls take the bearer token as
// an argument, and failures come back as *APIError values that unwrap to the
// domain error classes.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultBaseURL          = "http://localhost:5001"
	defaultPictureCacheSize = 256
)

// Client is a PetBook controller API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// profile picture URLs keyed by user id
	pictures *lru.Cache[string, string]
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient       *http.Client
	logger           *slog.Logger
	pictureCacheSize int
}

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithPictureCacheSize bounds the number of cached profile picture URLs.
func WithPictureCacheSize(n int) Option {
	return func(o *clientOptions) { o.pictureCacheSize = n }
}

// NewClient creates a new controller API client. If baseURL is empty, it
// defaults to http://localhost:5001.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	o := clientOptions{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		logger:           slog.Default(),
		pictureCacheSize: defaultPictureCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cache, err := lru.New[string, string](o.pictureCacheSize)
	if err != nil {
		o.logger.Warn("invalid picture cache size, using 1", "size", o.pictureCacheSize, "error", err)
		cache, _ = lru.New[string, string](1)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: o.httpClient,
		logger:     o.logger,
		pictures:   cache,
	}
}

// APIError is a non-2xx response from the controller.
type APIError struct {
	StatusCode int
	// Message is the backend's "message" field, or the raw body when the body
	// has none.
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap classifies the status into a domain error class.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return domain.ErrValidation
	default:
		return domain.ErrServer
	}
}

// DisplayMessage returns a user-facing message for err: the backend's message
// when there is one, the error text otherwise.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func newAPIError(status int, body []byte, requestID string) *APIError {
	msg := strings.TrimSpace(string(body))
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		msg = parsed.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg, RequestID: requestID}
}

// do sends a JSON request. body and result may be nil.
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any, result any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, token, query, reader, contentType, result)
}

func (c *Client) send(ctx context.Context, method, path, token string, query url.Values, body io.Reader, contentType string, result any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("send request: %w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %w", domain.ErrTransport, err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody, requestID)
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// pageQuery builds the pagination parameters shared by list endpoints. The
// controller names the size parameter differently per endpoint.
func pageQuery(sizeParam string, limit int, lastTimestamp string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set(sizeParam, fmt.Sprint(limit))
	}
	if lastTimestamp != "" {
		q.Set("last_timestamp", lastTimestamp)
	}
	return q
}
