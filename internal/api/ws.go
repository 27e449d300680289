package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"

	"caex-inspector-backend/internal/answer"
	"caex-inspector-backend/internal/carryforward"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/watch"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// originAllowed accepts requests without an Origin header and, when
// allowed is not empty, browser origins listed in it.
func originAllowed(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// streamError is the last frame sent when a live query fails.
type streamError struct {
	Error string `json:"error"`
}

// serveStream upgrades the request and writes every snapshot of the
// stream started by open as a JSON text frame. The stream is cancelled
// when the client goes away.
func serveStream[T any](h *Handler, c *gin.Context, open func(ctx context.Context) (<-chan T, <-chan error)) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws: upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reader: only control frames are expected; any error ends the stream.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snapshots, errc := open(ctx)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case v, ok := <-snapshots:
			if !ok {
				if err := <-errc; err != nil {
					h.log.WithError(err).WithField("path", c.FullPath()).Error("ws: live query failed")
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = conn.WriteJSON(streamError{Error: err.Error()})
				}
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
}

// WatchInspections streams the inspection list for the query filter.
func (h *Handler) WatchInspections(c *gin.Context) {
	f, ok := inspectionFilter(c)
	if !ok {
		h.badRequest(c)
		return
	}
	serveStream(h, c, func(ctx context.Context) (<-chan []model.Inspection, <-chan error) {
		return h.Lifecycle.Watch(ctx, f)
	})
}

// WatchAnswers streams the resolved checklist rows of one inspection.
// carry_forward=true streams the carry-forward set of a delivery instead.
func (h *Handler) WatchAnswers(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.Lifecycle.GetInspection(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("carry_forward") == "true" {
		serveStream(h, c, func(ctx context.Context) (<-chan carryforward.Set, <-chan error) {
			return h.Carry.Watch(ctx, id)
		})
		return
	}
	serveStream(h, c, func(ctx context.Context) (<-chan []answer.Row, <-chan error) {
		return watch.Stream(ctx, h.Hub, watch.AnswersTopic(id), func(ctx context.Context) ([]answer.Row, error) {
			return h.Answers.ResolveRows(ctx, id)
		})
	})
}
