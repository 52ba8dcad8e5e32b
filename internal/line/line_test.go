package line

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const testSecret = "channel-secret"

func TestVerifySignature_Valid(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := SignForTest(testSecret, body)

	if err := VerifySignature(testSecret, body, sig); err != nil {
		t.Fatalf("expected valid signature, got: %v", err)
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	body := []byte(`{"events":[]}`)

	err := VerifySignature(testSecret, body, "bm90LXRoZS1zaWduYXR1cmU=")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	sig := SignForTest(testSecret, []byte(`{"events":[]}`))

	err := VerifySignature(testSecret, []byte(`{"events":[{}]}`), sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestVerifySignature_EmptyHeader(t *testing.T) {
	if err := VerifySignature(testSecret, []byte("{}"), ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got: %v", err)
	}
}

func TestTruncate_Runes(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("short string must pass through, got %q", got)
	}
	if got := Truncate("hello", 3); got != "hel" {
		t.Fatalf("expected 'hel', got %q", got)
	}
	// Multi-byte text must be cut on rune boundaries.
	if got := Truncate("星占いです", 3); got != "星占い" {
		t.Fatalf("expected 3 runes, got %q", got)
	}
}

func TestReply_TruncatesToCap(t *testing.T) {
	var sent replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer channel-token" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("channel-token", zap.NewNop())
	c.BaseURL = srv.URL

	long := strings.Repeat("x", MaxReplyRunes+500)
	if err := c.Reply(context.Background(), "token-1", long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent.Messages))
	}
	if got := len([]rune(sent.Messages[0].Text)); got != MaxReplyRunes {
		t.Fatalf("expected reply capped at %d runes, got %d", MaxReplyRunes, got)
	}
}

func TestReply_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("t", zap.NewNop())
	c.BaseURL = srv.URL

	if err := c.Reply(context.Background(), "token-1", "hi"); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestIsTextMessage(t *testing.T) {
	if !(Event{Type: "message", Message: Message{Type: "text", Text: "hi"}}).IsTextMessage() {
		t.Fatal("text message should match")
	}
	if (Event{Type: "message", Message: Message{Type: "sticker"}}).IsTextMessage() {
		t.Fatal("sticker must not match")
	}
	if (Event{Type: "follow"}).IsTextMessage() {
		t.Fatal("follow event must not match")
	}
}
