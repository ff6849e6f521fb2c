package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/realtime"
	"github.com/gin-gonic/gin"
)

type EventsHandler struct {
	bus       realtime.Bus
	heartbeat time.Duration
	log       *logger.Logger
}

func NewEventsHandler(bus realtime.Bus, heartbeat time.Duration, log *logger.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{bus: bus, heartbeat: heartbeat, log: log.With("service", "EventsHandler")}
}

// Stream godoc
// @Summary     Event stream
// @Description Sends the user's events as server-sent events until the client goes away. The token may also be passed as access_token.
// @Tags        events
// @Produce     text/event-stream
// @Security    Bearer
// @Param       access_token query string false "Bearer token for clients that cannot set headers"
// @Success     200 {string} string "event stream"
// @Router      /events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	events, unsubscribe := h.bus.Subscribe(userID)
	defer unsubscribe()
	h.log.Debug("Event stream open", "user_id", userID)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.log.Debug("Event stream closed", "user_id", userID)
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			w.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.log.Warn("Failed to marshal event", "event", evt.Type, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			w.Flush()
		}
	}
}
