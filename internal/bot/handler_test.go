package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/fortune-bot/internal/commerce"
	"github.com/example/fortune-bot/internal/conversation"
	"github.com/example/fortune-bot/internal/entitlement"
	"github.com/example/fortune-bot/internal/kv"
	"github.com/example/fortune-bot/internal/line"
	"github.com/example/fortune-bot/internal/oracle"
	"github.com/example/fortune-bot/internal/usage"
)

const testSecret = "webhook-test-secret"

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
}

func (r *fakeReplier) Reply(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	return nil
}

func (r *fakeReplier) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		t.Fatal("no reply was sent")
	}
	return r.replies[len(r.replies)-1]
}

func (r *fakeReplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type fakeCompleter struct {
	text string
	err  error
}

func (c *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return c.text, c.err
}

type fakeEntitlements struct {
	mu        sync.Mutex
	standing  entitlement.Standing
	ent       *entitlement.Entitlement
	checkErr  error
	redeemEnt *entitlement.Entitlement
	redeemErr error
	consumed  int
}

func (f *fakeEntitlements) Redeem(context.Context, string, string) (*entitlement.Entitlement, error) {
	return f.redeemEnt, f.redeemErr
}

func (f *fakeEntitlements) Check(context.Context, string) (entitlement.Standing, *entitlement.Entitlement, error) {
	return f.standing, f.ent, f.checkErr
}

func (f *fakeEntitlements) Consume(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed++
	return nil
}

func (f *fakeEntitlements) consumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumed
}

func newTestHandler(t *testing.T, engine Entitlements, completer Completer) (*WebhookHandler, *fakeReplier, *conversation.Log) {
	t.Helper()
	store, err := kv.New("", false)
	if err != nil {
		t.Fatalf("kv.New: %v", err)
	}
	history := conversation.NewLog(store, 10, time.Hour)
	replier := &fakeReplier{}
	h := NewWebhookHandler(testSecret, zap.NewNop(), replier, engine, history, completer, nil)
	return h, replier, history
}

func postEvent(t *testing.T, h *WebhookHandler, userID, text string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(line.WebhookRequest{Events: []line.Event{{
		Type:       "message",
		ReplyToken: "rt-1",
		Source:     line.Source{Type: "user", UserID: userID},
		Message:    line.Message{ID: "m-1", Type: "text", Text: text},
	}}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return postBody(t, h, body, line.SignForTest(testSecret, body))
}

func postBody(t *testing.T, h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/line/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	h.Wait()
	return rec
}

func TestWebhookAcksBadSignature(t *testing.T) {
	h, replier, _ := newTestHandler(t, &fakeEntitlements{}, &fakeCompleter{})

	rec := postBody(t, h, []byte(`{"events":[]}`), "bm90LXRoZS1zaWduYXR1cmU=")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if replier.count() != 0 {
		t.Error("rejected delivery must not produce replies")
	}
}

func TestWebhookAcksMalformedBody(t *testing.T) {
	h, replier, _ := newTestHandler(t, &fakeEntitlements{}, &fakeCompleter{})

	body := []byte("{not json")
	rec := postBody(t, h, body, line.SignForTest(testSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if replier.count() != 0 {
		t.Error("unparseable delivery must not produce replies")
	}
}

func TestWebhookIgnoresNonTextEvents(t *testing.T) {
	h, replier, _ := newTestHandler(t, &fakeEntitlements{}, &fakeCompleter{})

	body, _ := json.Marshal(line.WebhookRequest{Events: []line.Event{{
		Type:    "message",
		Source:  line.Source{UserID: "U1"},
		Message: line.Message{Type: "sticker"},
	}}})
	rec := postBody(t, h, body, line.SignForTest(testSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if replier.count() != 0 {
		t.Error("sticker event must not produce a reply")
	}
}

func TestHelpCommand(t *testing.T) {
	h, replier, _ := newTestHandler(t, &fakeEntitlements{}, &fakeCompleter{})

	postEvent(t, h, "U1", "Help")
	if got := replier.last(t); got != msgHelp {
		t.Errorf("reply = %q, want help text", got)
	}
}

func TestResetCommandClearsHistory(t *testing.T) {
	h, replier, history := newTestHandler(t, &fakeEntitlements{}, &fakeCompleter{})
	ctx := context.Background()
	if _, err := history.Append(ctx, "U1", conversation.Turn{Role: conversation.RoleUser, Text: "hi"}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	postEvent(t, h, "U1", "reset")
	if got := replier.last(t); got != msgHistoryReset {
		t.Errorf("reply = %q, want reset confirmation", got)
	}
	turns, err := history.Load(ctx, "U1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("history still has %d turns after reset", len(turns))
	}
}

func TestRedeemErrorReplies(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"not found", commerce.ErrOrderNotFound, msgOrderNotFound},
		{"not paid", entitlement.ErrOrderNotPaid, msgOrderNotPaid},
		{"plan unknown", commerce.ErrPlanUnknown, msgPlanUnknown},
		{"owned by other", entitlement.ErrOrderOwnedByOther, msgOwnedByOther},
		{"already used", entitlement.ErrOrderAlreadyUsed, msgAlreadyUsed},
		{"transport", errors.New("shop down"), msgTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, replier, _ := newTestHandler(t, &fakeEntitlements{redeemErr: tc.err}, &fakeCompleter{})
			postEvent(t, h, "U1", "ST999999")
			if got := replier.last(t); got != tc.want {
				t.Errorf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChatStandingReplies(t *testing.T) {
	cases := []struct {
		name     string
		standing entitlement.Standing
		want     string
	}{
		{"none", entitlement.StandingNone, msgPurchaseGuide},
		{"expired", entitlement.StandingExpired, msgExpired},
		{"exhausted", entitlement.StandingExhausted, msgTrialUsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, replier, _ := newTestHandler(t, &fakeEntitlements{standing: tc.standing}, &fakeCompleter{})
			postEvent(t, h, "U1", "what does tomorrow hold")
			if got := replier.last(t); got != tc.want {
				t.Errorf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChatCheckFailureIsTransient(t *testing.T) {
	engine := &fakeEntitlements{checkErr: entitlement.ErrVerifyUnavailable}
	h, replier, _ := newTestHandler(t, engine, &fakeCompleter{})

	postEvent(t, h, "U1", "what does tomorrow hold")
	if got := replier.last(t); got != msgTransient {
		t.Errorf("reply = %q, want transient message", got)
	}
}

func TestChatQuotaExceeded(t *testing.T) {
	engine := &fakeEntitlements{
		standing: entitlement.StandingActive,
		ent:      &entitlement.Entitlement{Kind: commerce.PlanSubscription},
	}
	h, replier, _ := newTestHandler(t, engine, &fakeCompleter{err: oracle.ErrQuotaExceeded})

	postEvent(t, h, "U1", "what does tomorrow hold")
	if got := replier.last(t); got != msgCapacity {
		t.Errorf("reply = %q, want capacity message", got)
	}
}

func TestChatFallbackOnCompletionFailure(t *testing.T) {
	engine := &fakeEntitlements{
		standing: entitlement.StandingActive,
		ent:      &entitlement.Entitlement{Kind: commerce.PlanTrial},
	}
	h, replier, history := newTestHandler(t, engine, &fakeCompleter{err: errors.New("upstream 500")})

	postEvent(t, h, "U1", "what does tomorrow hold")
	got := replier.last(t)
	for _, heading := range conversation.Headings {
		if !strings.Contains(got, heading) {
			t.Errorf("fallback reply missing heading %q", heading)
		}
	}
	// A canned fallback is not a reading; the trial must survive it.
	if n := engine.consumeCount(); n != 0 {
		t.Errorf("fallback consumed the trial %d times", n)
	}
	turns, err := history.Load(context.Background(), "U1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("fallback must not be recorded in history, got %d turns", len(turns))
	}
}

func TestChatTrialConsumedWithNotice(t *testing.T) {
	engine := &fakeEntitlements{
		standing: entitlement.StandingActive,
		ent:      &entitlement.Entitlement{Kind: commerce.PlanTrial},
	}
	reading := "Conclusion: a bright day.\nReading: the cards align."
	h, replier, history := newTestHandler(t, engine, &fakeCompleter{text: reading})

	postEvent(t, h, "U1", "what does tomorrow hold")
	got := replier.last(t)
	if !strings.HasPrefix(got, reading) {
		t.Errorf("reply = %q, want the reading first", got)
	}
	if !strings.HasSuffix(got, msgTrialNotice) {
		t.Errorf("reply = %q, want trial notice appended", got)
	}
	if n := engine.consumeCount(); n != 1 {
		t.Errorf("trial consumed %d times, want 1", n)
	}
	turns, err := history.Load(context.Background(), "U1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("history turns = %d, want user + assistant", len(turns))
	}
	if turns[0].Role != conversation.RoleUser || turns[1].Role != conversation.RoleAssistant {
		t.Errorf("history roles = %q, %q", turns[0].Role, turns[1].Role)
	}
}

// fakeShop serves canned orders for the end-to-end flow below.
type fakeShop struct {
	orders map[string]*commerce.Order
}

func (s *fakeShop) LookupOrder(_ context.Context, token string) (*commerce.Order, error) {
	o, ok := s.orders[token]
	if !ok {
		return nil, commerce.ErrOrderNotFound
	}
	return o, nil
}

// TestDayPassFlow drives the full path with the real engine: redeem a
// paid day-pass order, get a reading, then find the pass expired after
// its window passes.
func TestDayPassFlow(t *testing.T) {
	ctx := context.Background()
	store, err := kv.New("", false)
	if err != nil {
		t.Fatalf("kv.New: %v", err)
	}
	usageStore, err := usage.NewStore("", "", time.Hour, false)
	if err != nil {
		t.Fatalf("usage.NewStore: %v", err)
	}
	shop := &fakeShop{orders: map[string]*commerce.Order{
		"ST999999": {
			ID:       "ST999999",
			Statuses: []string{"paid"},
			Amount:   980,
			Items:    []commerce.Item{{Title: "Fortune Day Pass (24h)", Price: 980}},
		},
	}}
	engine := entitlement.NewEngine(store, usageStore, shop, commerce.DefaultPlanRules(),
		entitlement.Policy{DayPassDuration: 24 * time.Hour}, nil, zap.NewNop())

	history := conversation.NewLog(store, 10, time.Hour)
	replier := &fakeReplier{}
	completer := &fakeCompleter{text: "Conclusion: fortune favors you today."}
	h := NewWebhookHandler(testSecret, zap.NewNop(), replier, engine, history, completer, nil)

	postEvent(t, h, "U1", "ST999999")
	if got := replier.last(t); !strings.Contains(got, "24") && !strings.Contains(strings.ToLower(got), "day") {
		t.Errorf("redeem reply = %q, want day-pass confirmation", got)
	}

	postEvent(t, h, "U1", "should I take the new job")
	if got := replier.last(t); got != completer.text {
		t.Errorf("chat reply = %q, want the reading", got)
	}

	// Age the pass past its window.
	var ent entitlement.Entitlement
	found, err := store.Get(ctx, "fortune:ent:U1", &ent)
	if err != nil || !found {
		t.Fatalf("entitlement record missing: found=%v err=%v", found, err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	ent.ExpiresAt = &past
	if err := store.Set(ctx, "fortune:ent:U1", ent, 0); err != nil {
		t.Fatalf("age entitlement: %v", err)
	}

	postEvent(t, h, "U1", "one more question")
	if got := replier.last(t); got != msgExpired {
		t.Errorf("post-expiry reply = %q, want expiry message", got)
	}

	// The expired record is gone; the next message gets the purchase guide.
	postEvent(t, h, "U1", "hello again")
	if got := replier.last(t); got != msgPurchaseGuide {
		t.Errorf("follow-up reply = %q, want purchase guide", got)
	}

	// The order number cannot be replayed by someone else.
	postEvent(t, h, "U2", "ST999999")
	if got := replier.last(t); got != msgOwnedByOther {
		t.Errorf("replay reply = %q, want owned-by-other message", got)
	}
}
