package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptparty/server-go/internal/game"
	"github.com/promptparty/server-go/internal/model"
	"github.com/promptparty/server-go/internal/notify"
	"github.com/promptparty/server-go/internal/sse"
)

// EventsHandler streams session events over SSE.
type EventsHandler struct {
	broker    *sse.Broker
	lifecycle *game.Lifecycle
}

func NewEventsHandler(broker *sse.Broker, lifecycle *game.Lifecycle) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		lifecycle: lifecycle,
	}
}

// GET /v1/sessions/{sessionId}/events?participantId=...
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	participantID := r.URL.Query().Get("participantId")

	session, err := h.lifecycle.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(id)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("sessionId", id).
		Str("participantId", participantID).
		Msg("sse connection established")

	h.sendEvent(w, flusher, "connected", map[string]any{
		"sessionId": id,
		"status":    session.Status,
	})

	ctx := r.Context()
	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("sessionId", id).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("sessionId", id).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, filterForRecipient(event, participantID)); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("sessionId", id).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

// filterForRecipient hides the recipient's own answer from the voting ballot.
func filterForRecipient(event sse.Event, participantID string) sse.Event {
	if participantID == "" || event.Type != string(model.EventVotingStarted) {
		return event
	}

	var payload notify.VotingStartedPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return event
	}

	ballot := payload.Ballot[:0]
	for _, entry := range payload.Ballot {
		if entry.ParticipantID != participantID {
			ballot = append(ballot, entry)
		}
	}
	payload.Ballot = ballot

	data, err := json.Marshal(payload)
	if err != nil {
		return event
	}
	return sse.Event{Type: event.Type, Data: data}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
