// Package oracle calls the chat-completion API that produces the actual
// fortune readings.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrQuotaExceeded means the API rejected the call with a rate-limit
	// or quota status. Surfaced to users as a capacity message, distinct
	// from the generic fallback.
	ErrQuotaExceeded = errors.New("oracle: completion quota exceeded")
	// ErrEmptyCompletion means the API answered 200 with no usable text.
	ErrEmptyCompletion = errors.New("oracle: empty completion")
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	// QuotaRetries is how many extra attempts follow a quota rejection.
	QuotaRetries int
	// RetryWait is the fixed pause between those attempts.
	RetryWait time.Duration
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
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 700
	}
	if cfg.QuotaRetries == 0 {
		cfg.QuotaRetries = 2
	} else if cfg.QuotaRetries < 0 {
		cfg.QuotaRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 2 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the system and user prompts and returns the best
// completion text. Quota rejections are retried with a short fixed
// backoff; other failures are not.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.QuotaRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying completion after quota rejection", zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.RetryWait):
			}
		}
		text, err := c.completeOnce(ctx, system, user, c.cfg.MaxTokens)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, ErrQuotaExceeded) {
			return "", err
		}
	}
	return "", lastErr
}

// Ping issues a one-token completion, used by the admin diagnostic.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.completeOnce(ctx, "", "ping", 1)
	if errors.Is(err, ErrEmptyCompletion) {
		// A truncated-but-successful answer is good enough for liveness.
		return nil
	}
	return err
}

func (c *Client) completeOnce(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.cb == nil {
		return c.doComplete(ctx, system, user, maxTokens)
	}
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.doComplete(ctx, system, user, maxTokens)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doComplete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	msgs := make([]message, 0, 2)
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: user})

	body, err := json.Marshal(map[string]any{
		"model":       c.cfg.Model,
		"messages":    msgs,
		"temperature": c.cfg.Temperature,
		"top_p":       c.cfg.TopP,
		"max_tokens":  maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("oracle: read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("oracle: decode error: %w body=%q", err, string(b[:min(len(b), 200)]))
	}
	if out.Error != nil {
		if out.Error.Type == "insufficient_quota" {
			return "", ErrQuotaExceeded
		}
		return "", fmt.Errorf("oracle: api error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}
