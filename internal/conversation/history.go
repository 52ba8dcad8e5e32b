// Package conversation keeps per-user bounded chat history and renders it
// into fortune-telling prompts.
package conversation

import (
	"context"
	"time"

	"github.com/example/fortune-bot/internal/kv"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Log stores the last N turns per user. Oldest turns are dropped first.
type Log struct {
	store    kv.Store
	maxTurns int
	ttl      time.Duration
}

func NewLog(store kv.Store, maxTurns int, ttl time.Duration) *Log {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Log{store: store, maxTurns: maxTurns, ttl: ttl}
}

func histKey(userID string) string { return "fortune:hist:" + userID }

func (l *Log) Load(ctx context.Context, userID string) ([]Turn, error) {
	var turns []Turn
	if _, err := l.store.Get(ctx, histKey(userID), &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// Append adds turns, trims to the cap and persists. It returns the
// trimmed history so callers avoid a second load.
func (l *Log) Append(ctx context.Context, userID string, turns ...Turn) ([]Turn, error) {
	history, err := l.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	history = append(history, turns...)
	if len(history) > l.maxTurns {
		history = history[len(history)-l.maxTurns:]
	}
	if err := l.store.Set(ctx, histKey(userID), history, l.ttl); err != nil {
		return nil, err
	}
	return history, nil
}

func (l *Log) Clear(ctx context.Context, userID string) error {
	return l.store.Delete(ctx, histKey(userID))
}
