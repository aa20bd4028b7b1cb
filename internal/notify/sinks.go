package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/sse"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) {
	log.Info().
		Str("kind", string(event.Kind)).
		Str("sessionId", event.SessionID).
		RawJSON("data", event.Data).
		Msg("session event")
}

// BrokerNotifier publishes events to the in-process broker for SSE delivery.
type BrokerNotifier struct {
	broker *sse.Broker
}

func NewBrokerNotifier(broker *sse.Broker) *BrokerNotifier {
	return &BrokerNotifier{broker: broker}
}

func (n *BrokerNotifier) Notify(ctx context.Context, event Event) {
	n.broker.Publish(event.SessionID, sse.Event{
		Type: string(event.Kind),
		Data: event.Data,
	})
}

// Fanout delivers each event to every wrapped notifier.
type Fanout []Notifier

func NewFanout(notifiers ...Notifier) Fanout {
	return Fanout(notifiers)
}

func (f Fanout) Notify(ctx context.Context, event Event) {
	for _, n := range f {
		n.Notify(ctx, event)
	}
}
