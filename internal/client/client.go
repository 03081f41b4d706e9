package client

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"CepaChat/internal/backend"
	"CepaChat/internal/cache"
	"CepaChat/internal/session"
)

const instrumentationName = "CepaChat/internal/client"

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 4 << 20

var (
	// ErrEmptyQuery is returned by SendMessage for blank input
	ErrEmptyQuery = errors.New("query must not be empty")
	// ErrResponseTooLarge is returned when a response body exceeds maxResponseBytes
	ErrResponseTooLarge = errors.New("response body too large")
)

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Options configures a Client
type Options struct {
	BaseURL    string
	HTTPClient *http.Client // defaults to a client with Timeout
	Timeout    time.Duration
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
	CacheTTL   time.Duration // session list memoization; 0 disables it
	Clock      cache.Clock
}

// Client talks to the chat backend's /chatbot/ endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	latency    metric.Float64Histogram
	clock      cache.Clock
	sessions   *cache.TTL[[]session.Session]
}

// New creates a client for the backend rooted at opts.BaseURL
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %s", opts.BaseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		clock:      opts.Clock,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.clock == nil {
		c.clock = cache.SystemClock{}
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	c.latency, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	if opts.CacheTTL > 0 {
		c.sessions = cache.NewTTL[[]session.Session](opts.CacheTTL, c.clock)
	}

	return c, nil
}

// SendMessage posts a question, optionally continuing sessionID. The first
// successful send without a session id creates the session server-side.
func (c *Client) SendMessage(ctx context.Context, query, sessionID string) (*session.Exchange, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var resp backend.ChatResponse
	reqBody := backend.ChatRequest{Query: query, SessionID: sessionID}
	if err := c.do(ctx, "send_message", http.MethodPost, "/chatbot/chat/", reqBody, &resp); err != nil {
		return nil, err
	}

	ex, err := resp.Exchange(query, c.clock.Now())
	if err != nil {
		return nil, err
	}
	if ex.SessionID != sessionID {
		c.invalidateSessions()
	}

	c.logger.Info("message exchanged",
		"session_id", ex.SessionID,
		"user_message_id", ex.User.ID,
		"assistant_message_id", ex.Assistant.ID)
	return ex, nil
}

// GetSession loads a session with its message history
func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var resp backend.SessionResponse
	if err := c.do(ctx, "get_session", http.MethodGet, sessionPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Session()
}

// CreateSession creates an empty session
func (c *Client) CreateSession(ctx context.Context, title string) (*session.Session, error) {
	var resp backend.SessionResponse
	if err := c.do(ctx, "create_session", http.MethodPost, "/chatbot/sessions/", backend.SessionRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	c.invalidateSessions()
	return resp.Session()
}

// UpdateSession renames a session
func (c *Client) UpdateSession(ctx context.Context, id, title string) (*session.Session, error) {
	var resp backend.SessionResponse
	if err := c.do(ctx, "update_session", http.MethodPatch, sessionPath(id), backend.SessionRequest{Title: title}, &resp); err != nil {
		return nil, err
	}
	c.invalidateSessions()
	return resp.Session()
}

// DeleteSession deletes a session server-side
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete_session", http.MethodDelete, sessionPath(id), nil, nil); err != nil {
		return err
	}
	c.invalidateSessions()
	return nil
}

// ListSessions returns the sessions known to the backend. Results are
// memoized for the configured cache TTL.
func (c *Client) ListSessions(ctx context.Context) ([]session.Session, error) {
	if c.sessions == nil {
		return c.listSessions(ctx)
	}
	list, err := c.sessions.GetOrLoad(ctx, c.sessionsKey(), c.listSessions)
	if err != nil {
		return nil, err
	}
	return append([]session.Session(nil), list...), nil
}

func (c *Client) listSessions(ctx context.Context) ([]session.Session, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "list_sessions", http.MethodGet, "/chatbot/sessions/", nil, &raw); err != nil {
		return nil, err
	}

	var items []backend.SessionResponse
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrMalformed, err)
		}
	} else {
		var page backend.SessionListResponse
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrMalformed, err)
		}
		items = page.Results
	}

	sessions := make([]session.Session, 0, len(items))
	for _, item := range items {
		sess, err := item.Session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

func (c *Client) sessionsKey() string {
	return cache.Key("sessions", c.baseURL)
}

func (c *Client) invalidateSessions() {
	if c.sessions != nil {
		c.sessions.Invalidate(c.sessionsKey())
	}
}

func sessionPath(id string) string {
	return "/chatbot/sessions/" + url.PathEscape(id) + "/"
}

// do performs one JSON request. out may be nil when the response body is
// not needed.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "chatbot."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	status := 0
	defer func() {
		c.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("operation", op),
				attribute.Int("http.status_code", status),
			))
	}()

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if in != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed", "operation", op, "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		c.logger.Error("response too large", "operation", op, "limit", maxResponseBytes)
		return ErrResponseTooLarge
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp backend.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Message = errResp.Text()
		}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		c.logger.Warn("backend returned error", "operation", op, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", backend.ErrMalformed, err)
	}
	return nil
}
