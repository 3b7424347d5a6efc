// Package backend talks to the remote schema service over HTTP.
package backend

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

	"golang.org/x/time/rate"

	"schemacanvas/internal/metrics"
	"schemacanvas/internal/models"
	"schemacanvas/internal/utils"
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client implements the schema backend contract against the remote service.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

// envelope covers both {success, message, data} and {status, message, data, error} replies.
type envelope struct {
	Success *bool           `json:"success"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok(httpStatus int) bool {
	if e.Success != nil {
		return *e.Success
	}
	if e.Status != "" {
		return e.Status == "success"
	}
	return httpStatus < 300
}

func (e envelope) failure() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func (c *Client) Connect(ctx context.Context, database string) error {
	_, err := c.do(ctx, "connect", http.MethodPost, "/api/connect", nil, map[string]string{"database": database})
	return err
}

// FetchSchema returns the raw schema payload for graph.Normalize.
func (c *Client) FetchSchema(ctx context.Context, database string) ([]byte, error) {
	q := url.Values{"database": {database}}
	return c.do(ctx, "fetch_schema", http.MethodGet, "/api/schema", q, nil)
}

// FetchColumns returns the raw ordered column list of one table.
func (c *Client) FetchColumns(ctx context.Context, database, schema, table string) ([]byte, error) {
	q := url.Values{"database": {database}, "schema": {schema}, "table": {table}}
	return c.do(ctx, "fetch_columns", http.MethodGet, "/api/schema/columns", q, nil)
}

func (c *Client) CreateForeignKey(ctx context.Context, req models.CreateForeignKeyRequest) (models.CreateForeignKeyResponse, error) {
	data, err := c.do(ctx, "create_foreign_key", http.MethodPost, "/api/foreign-keys", nil, req)
	if err != nil {
		return models.CreateForeignKeyResponse{}, err
	}
	res := models.CreateForeignKeyResponse{Success: true, ConstraintName: req.ConstraintName}
	if len(data) > 0 && string(data) != "null" {
		var body struct {
			ConstraintName string `json:"constraintName"`
		}
		if err := json.Unmarshal(data, &body); err == nil && body.ConstraintName != "" {
			res.ConstraintName = body.ConstraintName
		}
	}
	return res, nil
}

func (c *Client) DeleteForeignKey(ctx context.Context, req models.DeleteForeignKeyRequest) (models.BackendResult, error) {
	if _, err := c.do(ctx, "delete_foreign_key", http.MethodDelete, "/api/foreign-keys", nil, req); err != nil {
		return models.BackendResult{}, err
	}
	return models.BackendResult{Success: true}, nil
}

func (c *Client) ApplyColumnChange(ctx context.Context, req models.ColumnChangeRequest) (models.BackendResult, error) {
	if _, err := c.do(ctx, "apply_column_change", http.MethodPost, "/api/columns", nil, req); err != nil {
		return models.BackendResult{}, err
	}
	return models.BackendResult{Success: true}, nil
}

// do sends one request and returns the envelope's data. A failed envelope becomes a
// BackendRejection carrying the backend's message verbatim.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (data []byte, err error) {
	start := time.Now()
	defer func() { metrics.RecordBackendRequest(op, err, time.Since(start)) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: wait for rate limiter: %w", op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.NewBackendRejection("", fmt.Errorf("%s: %w", op, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewBackendRejection("", fmt.Errorf("%s: read response: %w", op, err))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, utils.NewBackendRejection(strings.TrimSpace(string(raw)), fmt.Errorf("%s: status %d", op, resp.StatusCode))
		}
		// Some endpoints answer with the bare payload.
		return raw, nil
	}
	if !env.ok(resp.StatusCode) {
		msg := env.failure()
		if msg == "" {
			msg = fmt.Sprintf("%s failed with status %d", op, resp.StatusCode)
		}
		return nil, utils.NewBackendRejection(msg, nil)
	}
	// Without a data field the payload sits beside the envelope flags.
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return raw, nil
	}
	return env.Data, nil
}
