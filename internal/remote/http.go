package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// APIError is a non successful response of the remote API.
type APIError struct {
	StatusCode int
	Module     string
	Function   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error on %s/%s: %s (status %d)", e.Module, e.Function, e.Message, e.StatusCode)
}

// HTTPClientConfig is the configuration for the HTTP remote client.
type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout bounds every remote call, it's the only enforced cancellation of a task.
	Timeout time.Duration
	// RateLimit is the maximum number of requests per second.
	RateLimit  int
	HTTPClient *http.Client
	Logger     log.Logger
}

func (c *HTTPClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "remote.HTTPClient"})
	return nil
}

// HTTPClient is the remote API client over HTTP+JSON.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

// NewHTTPClient returns a new HTTP remote client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		logger:  cfg.Logger,
	}, nil
}

// Call requests one page of a remote collection.
func (c *HTTPClient) Call(ctx context.Context, module, function string, q Query) (*Page, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", model.ErrNotValid)
	}
	if q.Start < 0 {
		return nil, fmt.Errorf("start can't be negative: %w", model.ErrNotValid)
	}

	var page Page
	if err := c.post(ctx, module, function, q, &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []model.Record{}
	}

	return &page, nil
}

// Save sends a payload to a remote write function.
func (c *HTTPClient) Save(ctx context.Context, module, function string, payload map[string]any) (map[string]any, error) {
	res := map[string]any{}
	if err := c.post(ctx, module, function, payload, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *HTTPClient) post(ctx context.Context, module, function string, body, result any) error {
	if module == "" || function == "" {
		return fmt.Errorf("module and function are required: %w", model.ErrNotValid)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", classify(ctx, err))
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, module, function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("could not call %s/%s: %w", module, function, classify(ctx, err))
	}
	defer resp.Body.Close()
	c.logger.Debugf("Called %s/%s in %s (status %d)", module, function, time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return fmt.Errorf("%s/%s returned %d: %w", module, function, resp.StatusCode, model.ErrConnectivityTimeout)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Module:     module,
			Function:   function,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	dec := json.NewDecoder(resp.Body)
	// Keep remote ids exact.
	dec.UseNumber()
	if err := dec.Decode(result); err != nil {
		return fmt.Errorf("could not decode %s/%s response: %w", module, function, classify(ctx, err))
	}

	return nil
}

// classify marks the timeouts as connectivity timeouts. When the caller
// context is done the error is the caller's and is returned as is.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", model.ErrConnectivityTimeout, err)
	}
	return err
}
