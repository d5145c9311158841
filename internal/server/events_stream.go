package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/fundalloc/internal/events"
)

const (
	heartbeatInterval = 30 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// EventsStreamHandler streams bus events to clients over SSE and WebSocket.
type EventsStreamHandler struct {
	eventBus       *events.Bus
	originPatterns []string
	log            zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler. allowedOrigins
// are the CORS origins; WebSocket upgrades are accepted from the same hosts.
func NewEventsStreamHandler(eventBus *events.Bus, allowedOrigins []string, log zerolog.Logger) *EventsStreamHandler {
	patterns := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimPrefix(origin, "https://")
		origin = strings.TrimPrefix(origin, "http://")
		patterns = append(patterns, origin)
	}

	return &EventsStreamHandler{
		eventBus:       eventBus,
		originPatterns: patterns,
		log:            log.With().Str("component", "events_stream").Logger(),
	}
}

// parseTypes reads the comma-separated ?types= filter. Empty means every type.
func parseTypes(r *http.Request) []events.EventType {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}

	var types []events.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.EventType(t))
		}
	}
	return types
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// The stream outlives the server write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug().Err(err).Msg("Could not clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	types := parseTypes(r)
	eventChan, cancel := h.eventBus.Subscribe(types...)
	defer cancel()

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	h.writeSSE(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			h.writeSSE(w, event)
			flusher.Flush()

		case <-heartbeat.C:
			h.writeSSE(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) writeSSE(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// ServeWebSocket handles GET /api/events/ws requests. Each event is one text message.
func (h *EventsStreamHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug().Err(err).Msg("Could not clear write deadline")
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	eventChan, cancel := h.eventBus.Subscribe(parseTypes(r)...)
	defer cancel()

	// Clients only listen; CloseRead handles control frames and ends ctx on disconnect
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Msg("Client connected to event websocket")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event websocket")
			return

		case event, ok := <-eventChan:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.writeWS(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-heartbeat.C:
			pingCtx, cancelPing := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.log.Debug().Err(err).Msg("WebSocket ping failed")
				}
				return
			}
		}
	}
}

func (h *EventsStreamHandler) writeWS(ctx context.Context, conn *websocket.Conn, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
