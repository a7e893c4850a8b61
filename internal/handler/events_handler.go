package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundori/fundori/internal/auth"
	"github.com/fundori/fundori/internal/view"
)

// DefaultHeartbeatInterval はSSE接続を維持するためのコメント送信間隔。
const DefaultHeartbeatInterval = 25 * time.Second

// EventsHandler はクライアントの認証状態の変化をServer-Sent Eventsで配信する。
// 接続ごとにauth.Observerを起動し、切断時に停止する。
type EventsHandler struct {
	gateway   AuthGateway
	recorder  auth.ObserverRecorder
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler はEventsHandlerを生成する。recorderはnilでもよい。
func NewEventsHandler(gateway AuthGateway, recorder auth.ObserverRecorder, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		gateway:   gateway,
		recorder:  recorder,
		heartbeat: DefaultHeartbeatInterval,
		logger:    logger,
	}
}

type sessionEvent struct {
	State   auth.State    `json:"state"`
	Loading bool          `json:"loading"`
	Page    view.Page     `json:"page"`
	User    *userResponse `json:"user,omitempty"`
}

// Stream は認証状態のスナップショットを"session"イベントとして送信し続ける。
// GET /auth/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	// サーバーのWriteTimeoutで長時間接続が切断されないよう書き込み期限を解除する
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	observer := auth.NewObserver(h.gateway, clientID, h.logger)
	if h.recorder != nil {
		observer.SetRecorder(h.recorder)
	}
	observer.Start(r.Context())
	defer observer.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSessionEvent(w, observer.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-observer.Updates():
			if !ok {
				return
			}
			if err := writeSessionEvent(w, snap); err != nil {
				h.logger.Debug("session stream closed", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSessionEvent(w http.ResponseWriter, snap auth.Snapshot) error {
	payload, err := json.Marshal(sessionEvent{
		State:   snap.State,
		Loading: snap.Loading(),
		Page:    view.Select(snap.State),
		User:    toUserResponse(snap.User),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", payload)
	return err
}
