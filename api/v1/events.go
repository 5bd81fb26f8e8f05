package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/reqid"
)

const eventWriteTimeout = 5 * time.Second

// Subscriber hands out event streams. *events.Hub satisfies it.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

type EventsHandler struct {
	l   *slog.Logger
	hub Subscriber
}

func NewEventsHandler(l *slog.Logger, hub Subscriber) *EventsHandler {
	return &EventsHandler{l: l, hub: hub}
}

// Stream upgrades to a websocket and pushes sync engine events as JSON text
// frames until the client goes away. Anything the client sends is ignored.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the error response.
		markErr(w, ErrUpgrade)
		return
	}
	defer c.CloseNow()

	ch, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()
	ctx := c.CloseRead(r.Context())
	log := reqid.Logger(r.Context(), h.l)
	log.Debug("event stream opened")

	for {
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				log.Debug("event stream closed", "err", err)
				return
			}
		}
	}
}
