// Package api is the fetch executor for the three cached resource families.
// It decodes the backend's {data, message, success, error} envelope into
// explicit result types and classifies failures for the cache layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-clientcache/pkg/types"
)

const maxBodySize = 10 * 1024 * 1024

// Config holds the backend location and credentials.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client performs the network calls for arts, updates and receipts.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client. If httpClient is nil a client with cfg.Timeout is used.
func NewClient(cfg *Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		token:      cfg.Token,
		logger:     logger.With().Str("component", "APIClient").Logger(),
	}, nil
}

// SetToken replaces the bearer token, e.g. after sign-in or sign-out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Artworks fetches one page of the arts feed.
func (c *Client) Artworks(ctx context.Context, page, limit int) (types.Page[types.Artwork], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var data struct {
		Artworks   []types.Artwork   `json:"artworks"`
		Pagination *types.Pagination `json:"pagination"`
	}
	if err := c.getJSON(ctx, "/art", q, &data); err != nil {
		return types.Page[types.Artwork]{}, err
	}
	return types.Page[types.Artwork]{Items: nonNil(data.Artworks), Pagination: paginationOrDefault(data.Pagination)}, nil
}

// Blogs fetches the updates feed. The endpoint takes no paging parameters.
func (c *Client) Blogs(ctx context.Context) (types.Page[types.Blog], error) {
	var data struct {
		Blogs      []types.Blog      `json:"blogs"`
		Pagination *types.Pagination `json:"pagination"`
	}
	if err := c.getJSON(ctx, "/blogs", nil, &data); err != nil {
		return types.Page[types.Blog]{}, err
	}
	return types.Page[types.Blog]{Items: nonNil(data.Blogs), Pagination: paginationOrDefault(data.Pagination)}, nil
}

// Receipts fetches the receipts issued in year.
func (c *Client) Receipts(ctx context.Context, year int) (types.ReceiptsPage, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))

	var data types.ReceiptsPage
	if err := c.getJSON(ctx, "/receipts", q, &data); err != nil {
		return types.ReceiptsPage{}, err
	}
	data.Receipts = nonNil(data.Receipts)
	return data, nil
}

// DownloadReceipt opens the document for a single receipt. The caller must
// close the returned reader.
func (c *Client) DownloadReceipt(ctx context.Context, receiptID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "/receipts/"+receiptID+"/download", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return nil, serverError(resp.StatusCode, body)
	}
	return resp.Body, nil
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success *bool           `json:"success"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return canceled(ctx.Err())
		}
		return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	if len(body) > maxBodySize {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("response body too large (exceeds %d bytes)", maxBodySize)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return serverError(resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Message
		if msg == "" {
			msg = messageFromBody(env.Error)
		}
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "malformed response data", Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.logger.Debug().Str("path", path).Msg("Request canceled by caller.")
			return nil, canceled(err)
		}
		c.logger.Warn().Err(err).Str("path", path).Msg("Request failed before a response was received.")
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}
	return resp, nil
}

func serverError(status int, body []byte) *Error {
	msg := messageFromBody(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: KindServer, Status: status, Message: msg}
}

func paginationOrDefault(p *types.Pagination) types.Pagination {
	if p == nil {
		return types.DefaultPagination()
	}
	return *p
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
