package analytics

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	platform "github.com/example/fortune-bot/internal/platform/analytics"
)

// Capturer is the slice of the PostHog client the sink uses.
type Capturer interface {
	Capture(distinctID, event string, props map[string]any)
}

// Sink consumes fortune.* events off NATS and forwards them to PostHog.
type Sink struct {
	ph  Capturer
	log *zap.Logger
}

func NewSink(ph Capturer, log *zap.Logger) *Sink {
	return &Sink{ph: ph, log: log}
}

// Subscribe attaches the sink to every fortune.* subject. The returned
// subscription is valid until the connection closes.
func (s *Sink) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe("fortune.>", s.HandleMessage)
}

// HandleMessage decodes one event envelope and captures it. Malformed
// payloads are logged and dropped; analytics never retries.
func (s *Sink) HandleMessage(msg *nats.Msg) {
	var ev platform.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		s.log.Warn("analytics: unmarshal event",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return
	}
	if ev.EventName == "" {
		s.log.Warn("analytics: event without a name", zap.String("subject", msg.Subject))
		return
	}
	distinctID := ev.UserID
	if distinctID == "" {
		distinctID = "anonymous"
	}
	props := map[string]any{
		"event_id":    ev.EventID,
		"occurred_at": ev.OccurredAt,
	}
	for k, v := range ev.Properties {
		props[k] = v
	}
	s.ph.Capture(distinctID, ev.EventName, props)
}
