package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kiri/internal/task"
)

const (
	watchWriteWait = 10 * time.Second
	watchPongWait  = 60 * time.Second
	watchPingEvery = (watchPongWait * 9) / 10
)

var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchOutbound struct {
	Type    string      `json:"type"`
	Project string      `json:"project_id,omitempty"`
	Event   *task.Event `json:"event,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WatchHandler streams run state transitions of one project over a
// websocket. The stream ends after a terminal state.
type WatchHandler struct {
	projects Projects
	hub      Subscriber
	logger   *zap.Logger
}

func NewWatchHandler(projects Projects, hub Subscriber, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchHandler{projects: projects, hub: hub, logger: logger}
}

func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lookupCtx, cancelLookup := context.WithTimeout(r.Context(), requestTimeout)
	_, err := h.projects.Get(lookupCtx, id)
	cancelLookup()
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}

	conn, err := watchUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.hub.Subscribe(id, 16)
	defer unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(watchPongWait)); err != nil {
		h.logger.Debug("watch set read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})

	// Reader: only control frames are expected; a read error ends the watch.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(out watchOutbound) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(out) == nil
	}
	if !write(watchOutbound{Type: "subscribed", Project: id}) {
		return
	}

	ticker := time.NewTicker(watchPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(watchOutbound{Type: "state", Project: id, Event: &ev}) {
				return
			}
			if ev.State.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.State)),
					time.Now().Add(watchWriteWait))
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
