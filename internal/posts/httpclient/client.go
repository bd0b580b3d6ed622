// Package httpclient talks to the posts REST API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/idilsaglam/posts/internal/apperr"
	"github.com/idilsaglam/posts/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20

	// IdempotencyHeader lets the server replay a create that was retried.
	IdempotencyHeader = "Idempotency-Key"
)

// Client implements optimistic.Service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.Timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for the API rooted at baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer("github.com/idilsaglam/posts/internal/posts/httpclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAll fetches every post, newest first.
func (c *Client) GetAll(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if err := c.do(ctx, "list", http.MethodGet, "/posts", nil, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Create sends a draft and returns the stored post with its ID.
func (c *Client) Create(ctx context.Context, d model.Draft) (model.Post, error) {
	var created model.Post
	hdr := http.Header{}
	hdr.Set(IdempotencyHeader, uuid.NewString())
	if err := c.do(ctx, "create", http.MethodPost, "/posts", hdr, d, &created); err != nil {
		return model.Post{}, err
	}
	return created, nil
}

// Update sends the post's fields and returns the server's copy.
func (c *Client) Update(ctx context.Context, p model.Post) (model.Post, error) {
	var updated model.Post
	body := model.Patch{Title: &p.Title, IsRead: &p.IsRead}
	if err := c.do(ctx, "update", http.MethodPatch, postPath(p.ID), nil, body, &updated); err != nil {
		return model.Post{}, err
	}
	return updated, nil
}

// Delete removes the post with the given ID.
func (c *Client) Delete(ctx context.Context, id model.ID) error {
	return c.do(ctx, "delete", http.MethodDelete, postPath(id), nil, nil, nil)
}

func postPath(id model.ID) string {
	return "/posts/" + strconv.FormatInt(int64(id), 10)
}

func (c *Client) do(ctx context.Context, op, method, path string, hdr http.Header, in, out any) (err error) {
	url := c.baseURL + path
	ctx, span := c.tracer.Start(ctx, "posts.http."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request failed", "op", op, "method", method, "url", url, "error", err)
		return &apperr.TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.log.Debug("request done", "op", op, "method", method, "url", url,
		"status", resp.StatusCode, "duration", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &apperr.TransportError{Method: method, URL: url, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.TransportError{
			Method:  method,
			URL:     url,
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
			Body:    raw,
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.TransportError{
			Method: method, URL: url, Status: resp.StatusCode,
			Err: fmt.Errorf("decode %s response: %w", op, err),
		}
	}
	return nil
}

// errorMessage pulls "error" out of a JSON error body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Error
}
