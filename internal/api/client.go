// Package api is the HTTP client for the external purchases API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courses/internal/core"
)

// ErrDisabled is returned by every call when no base URL is configured.
var ErrDisabled = errors.New("remote API disabled")

// StatusError reports a non-2xx answer from the API.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. An empty baseURL yields a client
// whose calls all fail with ErrDisabled.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

func (c *Client) BaseURL() string { return c.baseURL }

type createRequest struct {
	Date  core.Date   `json:"date"`
	Items []core.Item `json:"items"`
}

type createResponse struct {
	OK bool `json:"ok"`
	ID any  `json:"id"`
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/ping", nil, nil, nil)
}

// ListPurchases fetches purchases with their items. q filters on item name
// server-side; order is "asc" or "desc".
func (c *Client) ListPurchases(ctx context.Context, q string, order core.SortOrder) ([]core.Purchase, error) {
	query := url.Values{}
	if q = strings.TrimSpace(q); q != "" {
		query.Set("q", q)
	}
	query.Set("order", string(order))
	var out []core.Purchase
	if err := c.do(ctx, http.MethodGet, "/api/purchases", query, nil, &out); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

// CreatePurchase posts a purchase and returns the id assigned by the API.
func (c *Client) CreatePurchase(ctx context.Context, date core.Date, items []core.Item) (string, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/purchases", nil, createRequest{Date: date, Items: items}, &resp); err != nil {
		return "", fmt.Errorf("create purchase: %w", err)
	}
	switch id := resp.ID.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case string:
		return id, nil
	default:
		return "", nil
	}
}

func (c *Client) DeletePurchase(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/purchases/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete purchase %s: %w", id, err)
	}
	return nil
}

func (c *Client) Totals(ctx context.Context, r core.DateRange) (core.Totals, error) {
	query := url.Values{}
	if !r.From.IsZero() {
		query.Set("from", r.From.String())
	}
	if !r.To.IsZero() {
		query.Set("to", r.To.String())
	}
	var out core.Totals
	if err := c.do(ctx, http.MethodGet, "/api/stats/total", query, nil, &out); err != nil {
		return core.Totals{}, fmt.Errorf("get totals: %w", err)
	}
	return out, nil
}

func (c *Client) TopProducts(ctx context.Context, limit int) ([]core.ProductStat, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []core.ProductStat
	if err := c.do(ctx, http.MethodGet, "/api/stats/top-products", query, nil, &out); err != nil {
		return nil, fmt.Errorf("get top products: %w", err)
	}
	return out, nil
}

func (c *Client) Export(ctx context.Context) ([]core.Purchase, error) {
	var out []core.Purchase
	if err := c.do(ctx, http.MethodGet, "/api/export", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("export purchases: %w", err)
	}
	return out, nil
}

// Import replaces every purchase on the API with the given ones.
func (c *Client) Import(ctx context.Context, purchases []core.Purchase) error {
	if purchases == nil {
		purchases = []core.Purchase{}
	}
	if err := c.do(ctx, http.MethodPost, "/api/import", nil, purchases, nil); err != nil {
		return fmt.Errorf("import purchases: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
