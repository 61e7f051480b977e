package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stejskal/web-predator/internal/domain"
	"go.uber.org/zap"
)

const DefaultTimeout = 60 * time.Second

// Client implements domain.GraphAPI over the backend's JSON HTTP API.
type Client struct {
	httpClient *http.Client
	server     string
	log        *zap.Logger
}

var _ domain.GraphAPI = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a client for server, the API base such as
// http://127.0.0.1:8080/api/v1. A zero timeout uses DefaultTimeout.
func New(server string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		server:     strings.TrimRight(server, "/"),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	var out []domain.Entity
	if err := c.request(ctx, http.MethodGet, "/entities", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetEntity(ctx context.Context, id uint) (domain.Entity, error) {
	var out domain.Entity
	err := c.request(ctx, http.MethodGet, fmt.Sprintf("/entities/%d", id), nil, &out)
	return out, err
}

func (c *Client) SearchEntities(ctx context.Context, params domain.SearchParams) ([]domain.Entity, error) {
	q := url.Values{}
	if params.Name != "" {
		q.Set("name", params.Name)
	}
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	if params.NameFragment != "" {
		q.Set("nameFragment", params.NameFragment)
	}
	path := "/entities/search"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []domain.Entity
	if err := c.request(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateEntity(ctx context.Context, req domain.CreateEntityRequest) (domain.Entity, error) {
	var out domain.Entity
	err := c.request(ctx, http.MethodPost, "/entities", req, &out)
	return out, err
}

func (c *Client) UpdateEntity(ctx context.Context, id uint, req domain.UpdateEntityRequest) (domain.Entity, error) {
	var out domain.Entity
	err := c.request(ctx, http.MethodPut, fmt.Sprintf("/entities/%d", id), req, &out)
	return out, err
}

func (c *Client) DeleteEntity(ctx context.Context, id uint) error {
	return c.request(ctx, http.MethodDelete, fmt.Sprintf("/entities/%d", id), nil, nil)
}

func (c *Client) RelatedEntities(ctx context.Context, id uint) ([]domain.Entity, error) {
	var out []domain.Entity
	if err := c.request(ctx, http.MethodGet, fmt.Sprintf("/entities/%d/related", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRelationship(ctx context.Context, fromID, toID uint) error {
	return c.request(ctx, http.MethodPost, fmt.Sprintf("/entities/%d/relationships/%d", fromID, toID), nil, nil)
}

func (c *Client) DeleteRelationship(ctx context.Context, fromID, toID uint) error {
	return c.request(ctx, http.MethodDelete, fmt.Sprintf("/entities/%d/relationships/%d", fromID, toID), nil, nil)
}

func (c *Client) Schema(ctx context.Context) (domain.Schema, error) {
	var out domain.Schema
	err := c.request(ctx, http.MethodGet, "/schema", nil, &out)
	return out, err
}

func (c *Client) FindSimilarIngredients(ctx context.Context, req domain.FindSimilarIngredientsRequest) ([]domain.SimilarIngredient, error) {
	var out []domain.SimilarIngredient
	if err := c.request(ctx, http.MethodPost, "/ingredients/similar", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health calls the backend's health endpoint at the server root.
func (c *Client) Health(ctx context.Context) error {
	base := c.server
	if i := strings.Index(base, "/api/"); i >= 0 {
		base = base[:i]
	}
	return c.do(ctx, http.MethodGet, base+"/health", nil, nil)
}

func (c *Client) request(ctx context.Context, method, path string, in any, out any) error {
	return c.do(ctx, method, c.server+path, in, out)
}

func (c *Client) do(ctx context.Context, method, target string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("method", method), zap.String("url", target), zap.String("request_id", requestID), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.log.Debug("request done",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, target, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &domain.APIError{StatusCode: resp.StatusCode}
	var body domain.ErrorResponse
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(payload))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
