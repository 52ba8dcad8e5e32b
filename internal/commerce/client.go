// Package commerce looks up orders against the external shop API and
// normalizes their many response shapes into a single Order record.
package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOrderNotFound means both the id and the order-number lookup missed.
// Any other error from LookupOrder is a transport or decoding failure.
var ErrOrderNotFound = errors.New("commerce: order not found")

// AuthMode selects how the shop API expects credentials.
type AuthMode string

const (
	// AuthBearer sends Authorization: Bearer <token>.
	AuthBearer AuthMode = "bearer"
	// AuthHeader sends the token in a custom header (Config.HeaderName).
	AuthHeader AuthMode = "header"
)

type Config struct {
	BaseURL    string
	AuthMode   AuthMode
	Token      string
	HeaderName string // used with AuthHeader, e.g. "X-Shop-Access-Token"
}

type Client struct {
	cfg        Config
	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
	log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.cb = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthBearer
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = "X-Shop-Access-Token"
	}
	c := &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LookupOrder fetches an order by its internal id, falling back to a
// lookup by the user-facing order number when the id misses.
// Returns ErrOrderNotFound when neither lookup matches.
func (c *Client) LookupOrder(ctx context.Context, token string) (*Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrOrderNotFound
	}
	if c.cb != nil {
		result, err := c.cb.Execute(func() (interface{}, error) {
			return c.lookup(ctx, token)
		})
		if err != nil {
			return nil, err
		}
		return result.(*Order), nil
	}
	return c.lookup(ctx, token)
}

func (c *Client) lookup(ctx context.Context, token string) (*Order, error) {
	order, err := c.fetchByID(ctx, token)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return nil, err
	}

	c.log.Debug("order id lookup missed, trying order number", zap.String("token", token))
	return c.fetchByNumber(ctx, token)
}

func (c *Client) fetchByID(ctx context.Context, id string) (*Order, error) {
	raw, err := c.doJSON(ctx, c.cfg.BaseURL+"/orders/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	order := NormalizeOrder(unwrapObject(raw))
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (c *Client) fetchByNumber(ctx context.Context, number string) (*Order, error) {
	raw, err := c.doJSON(ctx, c.cfg.BaseURL+"/orders?number="+url.QueryEscape(number))
	if err != nil {
		return nil, err
	}
	order := NormalizeOrder(firstOfList(raw))
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (c *Client) doJSON(ctx context.Context, u string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "fortune-bot/1.0")
	switch c.cfg.AuthMode {
	case AuthHeader:
		req.Header.Set(c.cfg.HeaderName, c.cfg.Token)
	default:
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commerce: request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("commerce: read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("commerce: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("commerce: decode error: %w body=%q", err, string(b[:min(len(b), 200)]))
	}
	return out, nil
}

// unwrapObject peels common single-order envelopes ({"order": {...}},
// {"data": {...}}) down to the order object itself.
func unwrapObject(raw any) map[string]any {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"order", "data"} {
		if inner, ok := obj[key].(map[string]any); ok {
			return inner
		}
	}
	return obj
}

// firstOfList extracts the first order from list-shaped responses:
// {"orders":[...]}, {"data":[...]} or a bare array.
func firstOfList(raw any) map[string]any {
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"orders", "data", "items", "results"} {
			if l, ok := v[key].([]any); ok {
				list = l
				break
			}
		}
	}
	if len(list) == 0 {
		return nil
	}
	obj, _ := list[0].(map[string]any)
	return obj
}
