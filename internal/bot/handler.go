// Package bot dispatches inbound webhook events to the redemption and
// chat paths and owns the user-facing message catalog.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/fortune-bot/internal/commerce"
	"github.com/example/fortune-bot/internal/conversation"
	"github.com/example/fortune-bot/internal/entitlement"
	"github.com/example/fortune-bot/internal/line"
	"github.com/example/fortune-bot/internal/oracle"
	"github.com/example/fortune-bot/internal/platform/analytics"
)

const (
	maxBodyBytes = 65536
	eventTimeout = 60 * time.Second
)

// Replier delivers one reply message for a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Completer produces the fortune reading text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Entitlements is the slice of the entitlement engine the dispatcher uses.
type Entitlements interface {
	Redeem(ctx context.Context, userID, token string) (*entitlement.Entitlement, error)
	Check(ctx context.Context, userID string) (entitlement.Standing, *entitlement.Entitlement, error)
	Consume(ctx context.Context, userID string) error
}

// WebhookHandler handles LINE webhook POST requests.
type WebhookHandler struct {
	secret  string
	log     *zap.Logger
	replier Replier
	engine  Entitlements
	history *conversation.Log
	oracle  Completer
	events  *analytics.Publisher

	// wg tracks in-flight event goroutines; tests use Wait.
	wg sync.WaitGroup
}

func NewWebhookHandler(
	secret string,
	log *zap.Logger,
	replier Replier,
	engine Entitlements,
	history *conversation.Log,
	completer Completer,
	events *analytics.Publisher,
) *WebhookHandler {
	return &WebhookHandler{
		secret:  secret,
		log:     log,
		replier: replier,
		engine:  engine,
		history: history,
		oracle:  completer,
		events:  events,
	}
}

// ServeHTTP acknowledges the delivery immediately and processes each
// event in its own goroutine. Bad signatures and malformed payloads are
// logged and acknowledged anyway - the transport never sees a failure
// the platform would retry forever.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("webhook body read failed", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if sig := r.Header.Get("X-Line-Signature"); sig != "" {
		if err := line.VerifySignature(h.secret, body, sig); err != nil {
			h.log.Warn("webhook signature verification failed", zap.Error(err))
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	var req line.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.log.Warn("webhook payload unparseable", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	// Ack before business processing; the platform's delivery timeout
	// does not wait for order lookups or completions.
	w.WriteHeader(http.StatusOK)

	for _, ev := range req.Events {
		ev := ev
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					h.log.Error("event handler panicked", zap.Any("panic", rec))
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			defer cancel()
			h.handleEvent(ctx, ev)
		}()
	}
}

// Wait blocks until all in-flight events finish. Test helper.
func (h *WebhookHandler) Wait() { h.wg.Wait() }

func (h *WebhookHandler) handleEvent(ctx context.Context, ev line.Event) {
	if !ev.IsTextMessage() {
		return
	}
	userID := strings.TrimSpace(ev.Source.UserID)
	text := strings.TrimSpace(ev.Message.Text)
	if userID == "" || text == "" {
		return
	}

	var reply string
	switch {
	case isCommand(text, "help", "menu"):
		reply = msgHelp
	case isCommand(text, "reset"):
		reply = h.handleReset(ctx, userID)
	default:
		if token := ExtractOrderToken(text); token != "" {
			reply = h.handleRedeem(ctx, userID, token)
		} else {
			reply = h.handleChat(ctx, userID, text)
		}
	}
	if reply == "" {
		return
	}

	if err := h.replier.Reply(ctx, ev.ReplyToken, reply); err != nil {
		h.log.Error("reply delivery failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func isCommand(text string, names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(text, n) {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) handleReset(ctx context.Context, userID string) string {
	if err := h.history.Clear(ctx, userID); err != nil {
		h.log.Error("history reset failed", zap.String("user_id", userID), zap.Error(err))
		return msgTransient
	}
	h.events.Publish(analytics.SubjectHistoryReset, "history_reset", userID, nil)
	return msgHistoryReset
}

func (h *WebhookHandler) handleRedeem(ctx context.Context, userID, token string) string {
	ent, err := h.engine.Redeem(ctx, userID, token)
	if err != nil {
		switch {
		case errors.Is(err, commerce.ErrOrderNotFound):
			return msgOrderNotFound
		case errors.Is(err, entitlement.ErrOrderNotPaid):
			return msgOrderNotPaid
		case errors.Is(err, commerce.ErrPlanUnknown):
			return msgPlanUnknown
		case errors.Is(err, entitlement.ErrOrderOwnedByOther):
			return msgOwnedByOther
		case errors.Is(err, entitlement.ErrOrderAlreadyUsed):
			return msgAlreadyUsed
		default:
			h.log.Error("redemption failed", zap.String("user_id", userID), zap.Error(err))
			return msgTransient
		}
	}
	return redeemedMessage(ent)
}

func (h *WebhookHandler) handleChat(ctx context.Context, userID, text string) string {
	standing, ent, err := h.engine.Check(ctx, userID)
	if err != nil {
		if !errors.Is(err, entitlement.ErrVerifyUnavailable) {
			h.log.Error("entitlement check failed", zap.String("user_id", userID), zap.Error(err))
		}
		return msgTransient
	}
	switch standing {
	case entitlement.StandingNone:
		return msgPurchaseGuide
	case entitlement.StandingExpired:
		return msgExpired
	case entitlement.StandingExhausted:
		return msgTrialUsed
	}

	history, err := h.history.Load(ctx, userID)
	if err != nil {
		h.log.Warn("history load failed, reading without context", zap.String("user_id", userID), zap.Error(err))
		history = nil
	}

	system, user := conversation.BuildPrompt(history, text)
	reading, err := h.oracle.Complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, oracle.ErrQuotaExceeded) {
			h.log.Warn("completion quota exceeded", zap.String("user_id", userID))
			return msgCapacity
		}
		h.log.Error("completion failed, serving fallback", zap.String("user_id", userID), zap.Error(err))
		h.events.Publish(analytics.SubjectReplyFallback, "reply_fallback", userID, nil)
		return conversation.FallbackReply()
	}

	now := time.Now().UTC()
	if _, err := h.history.Append(ctx, userID,
		conversation.Turn{Role: conversation.RoleUser, Text: text, At: now},
		conversation.Turn{Role: conversation.RoleAssistant, Text: reading, At: now},
	); err != nil {
		h.log.Warn("history persist failed", zap.String("user_id", userID), zap.Error(err))
	}

	if ent != nil && ent.Kind == commerce.PlanTrial {
		if err := h.engine.Consume(ctx, userID); err != nil {
			h.log.Error("trial consumption failed", zap.String("user_id", userID), zap.Error(err))
		}
		reading += msgTrialNotice
	}

	h.events.Publish(analytics.SubjectReplyGenerated, "reply_generated", userID,
		map[string]any{"plan": string(ent.Kind)})
	return reading
}
