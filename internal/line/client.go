package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxReplyRunes is the per-message length cap enforced before sending.
const MaxReplyRunes = 4900

type Client struct {
	BaseURL      string
	ChannelToken string
	HTTPClient   *http.Client
	Log          *zap.Logger
}

func NewClient(channelToken string, log *zap.Logger) *Client {
	return &Client{
		BaseURL:      "https://api.line.me",
		ChannelToken: channelToken,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Log:          log,
	}
}

type replyRequest struct {
	ReplyToken string         `json:"replyToken"`
	Messages   []replyMessage `json:"messages"`
}

type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply sends one text message for the given reply token, truncating to
// the platform cap first.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	text = Truncate(text, MaxReplyRunes)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	body, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   []replyMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/v2/bot/message/reply", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.ChannelToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: reply request failed: %w", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("line: reply status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	return nil
}

// Truncate caps s at n runes, not bytes, so multi-byte text is never cut
// mid-character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
