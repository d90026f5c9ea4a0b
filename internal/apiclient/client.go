package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskflow/internal/models"
	"taskflow/internal/normalize"
	"taskflow/pkg/logger"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const maxBodyBytes = 1 << 20

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	TitleField         string // "title" or "task"
	UpdateMethod       string // PUT or PATCH
	CompletedRoute     bool   // list completed todos via /todos/completed
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	HTTPClient         *http.Client
}

// CredentialSource supplies the bearer token. An empty token sends no
// Authorization header; the server decides what that means.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to CredentialSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client talks to the to-do API. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	creds   CredentialSource
	breaker *gobreaker.CircuitBreaker
	lists   singleflight.Group
}

// New builds a Client. creds may be nil.
func New(opts Options, creds CredentialSource) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid API base URL %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TitleField != "task" {
		opts.TitleField = "title"
	}
	opts.UpdateMethod = strings.ToUpper(opts.UpdateMethod)
	if opts.UpdateMethod != http.MethodPatch {
		opts.UpdateMethod = http.MethodPut
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	c := &Client{base: base, opts: opts, http: hc, creds: creds}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "todo-api",
		Timeout: opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerMaxFailures
		},
		// Only transport and server faults say anything about the API's health.
		IsSuccessful: func(err error) bool {
			var re *RemoteError
			return err == nil || !errors.As(err, &re)
		},
	})
	return c, nil
}

// List returns the todos matching q.
func (c *Client) List(ctx context.Context, q models.ListQuery) ([]models.Task, error) {
	page, err := c.ListPage(ctx, q)
	if err != nil {
		return nil, err
	}
	return page.Tasks, nil
}

// ListPage is List plus the pagination metadata of the response.
// Identical concurrent calls share one request.
func (c *Client) ListPage(ctx context.Context, q models.ListQuery) (models.Page, error) {
	path := "/todos"
	if c.opts.CompletedRoute && q.Completed != nil && *q.Completed {
		path = "/todos/completed"
		q.Completed = nil
	}
	values, err := query.Values(q)
	if err != nil {
		return models.Page{}, &ValidationError{Message: err.Error()}
	}
	key := path + "?" + values.Encode()
	ch := c.lists.DoChan(key, func() (any, error) {
		// The shared request outlives any one caller; the client timeout bounds it.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
		defer cancel()
		body, err := c.do(rctx, http.MethodGet, path, values, nil, "")
		if err != nil {
			return nil, err
		}
		return normalize.PageOf(body)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return models.Page{}, ctx.Err()
	}
	if res.Err != nil {
		return models.Page{}, res.Err
	}
	page := res.Val.(models.Page)
	// The singleflight result is shared; hand each caller its own slice.
	page.Tasks = append([]models.Task(nil), page.Tasks...)
	if page.Tasks == nil {
		page.Tasks = []models.Task{}
	}
	return page, nil
}

// Create posts a new todo. A missing priority defaults to LOW.
func (c *Client) Create(ctx context.Context, d models.Draft) (models.Task, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Priority == "" {
		d.Priority = models.PriorityLow
	}
	if err := check(&d); err != nil {
		return models.Task{}, err
	}
	payload := map[string]any{
		c.opts.TitleField: d.Title,
		"priority":        d.Priority,
		"date":            d.Date.String(),
	}
	body, err := c.do(ctx, http.MethodPost, "/todos", nil, payload, "")
	if err != nil {
		return models.Task{}, err
	}
	return normalize.One(body)
}

// Update sends a partial update for id.
func (c *Client) Update(ctx context.Context, id string, p models.Patch) (models.Task, error) {
	if strings.TrimSpace(id) == "" {
		return models.Task{}, &ValidationError{Message: "id is required."}
	}
	payload, err := c.patchPayload(p)
	if err != nil {
		return models.Task{}, err
	}
	body, err := c.do(ctx, c.opts.UpdateMethod, "/todos/"+url.PathEscape(id), nil, payload, id)
	if err != nil {
		return models.Task{}, err
	}
	return normalize.One(body)
}

// Remove deletes id. A NotFoundError means the todo is already gone; callers
// that only care about the end state may treat it as success.
func (c *Client) Remove(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Message: "id is required."}
	}
	_, err := c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil, id)
	return err
}

func (c *Client) patchPayload(p models.Patch) (map[string]any, error) {
	if p.Empty() {
		return nil, &ValidationError{Message: "Nothing to update."}
	}
	payload := map[string]any{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, &ValidationError{Message: "title is required.", Fields: map[string]string{"title": "title is required."}}
		}
		payload[c.opts.TitleField] = title
	}
	if p.Completed != nil {
		payload["completed"] = *p.Completed
	}
	if p.DueDate != nil {
		if p.DueDate.IsZero() {
			return nil, &ValidationError{Message: "date is required.", Fields: map[string]string{"date": "date is required."}}
		}
		payload["date"] = p.DueDate.String()
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return nil, &ValidationError{Message: "priority must be one of LOW|MEDIUM|HIGH.", Fields: map[string]string{"priority": "priority must be one of LOW|MEDIUM|HIGH."}}
		}
		payload["priority"] = *p.Priority
	}
	return payload, nil
}

// do performs one request through the breaker and returns the body of a 2xx
// response. id is only used to label NotFoundError.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload any, id string) ([]byte, error) {
	reqID := uuid.New().String()
	ctx = logger.WithRequestID(ctx, reqID)

	target := c.base.String() + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			logger.Warn(ctx, "Credential lookup failed", "error", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	v, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &RemoteError{Message: err.Error(), Err: err}
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, &RemoteError{Status: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
		}
		logger.Debug(ctx, "Remote call", "method", method, "path", path, "status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, classify(resp.StatusCode, id, body)
		}
		return body, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &RemoteError{Message: "service temporarily unavailable", Err: err}
	}
	if err != nil {
		logger.Warn(ctx, "Remote call failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	return v.([]byte), nil
}
