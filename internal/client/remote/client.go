// Package remote is the HTTP client for the cart API.
package remote

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

	"github.com/fjod/cartsync/internal/api"
	"github.com/fjod/cartsync/internal/domain"
	"github.com/fjod/cartsync/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the cart API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("cart api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("cart api: %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    gobreaker.Settings
	Log        *slog.Logger
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *slog.Logger
}

func New(opts Options) *Client {
	log := logger.OrDefault(opts.Log).With("component", "cart-client")

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	settings := opts.Breaker
	if settings.Name == "" {
		settings.Name = "cart-api"
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = isSuccessful
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		log:     log,
	}
}

// isSuccessful keeps client errors from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < http.StatusInternalServerError
	}
	return errors.Is(err, context.Canceled)
}

// FetchCart reads the aggregated cart straight from the network. A nil cart
// with a nil error means the owner has never synced.
func (c *Client) FetchCart(ctx context.Context, token string) (*domain.AggregatedCart, error) {
	header := http.Header{}
	header.Set("Cache-Control", "no-cache")

	var resp api.CartResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/cart", token, header, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cart.ToAggregated(), nil
}

// SyncCart replaces the server-side item list with lines.
func (c *Client) SyncCart(ctx context.Context, token string, lines []domain.CartLine) (*domain.AggregatedCart, error) {
	body, err := json.Marshal(api.SyncCartRequest{Items: api.FromLines(lines)})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	var resp api.CartResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/cart", token, nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Cart.ToAggregated(), nil
}

func (c *Client) Product(ctx context.Context, id string) (*domain.Product, error) {
	var resp api.ProductResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/products/"+url.PathEscape(id), "", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Product, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, header http.Header, body []byte, out interface{}) error {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, token, header, body)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, header http.Header, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope api.ErrorResponse
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Error
		}
		return nil, apiErr
	}
	return data, nil
}
