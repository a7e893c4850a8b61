package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/search"
)

// transcriptWait は音声認識の開始直後に届いた認識結果を受け渡すまで待つ上限。
const transcriptWait = 500 * time.Millisecond

// maxSearchBodyBytes は検索APIのリクエストボディの上限。
const maxSearchBodyBytes = 8 << 10

// SearchHandler は検索ウィジェットのハンドラー。
// ウィジェットはクライアントごとに保持し、ログアウトまたは一定時間のアイドルで破棄する。
type SearchHandler struct {
	widgets WidgetRegistry
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(widgets WidgetRegistry) *SearchHandler {
	return &SearchHandler{widgets: widgets}
}

type searchRequest struct {
	Query string `json:"query"`
}

type voiceRequest struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
}

type toggleResponse struct {
	Listening bool         `json:"listening"`
	State     search.State `json:"state"`
}

type promptsResponse struct {
	Prompts []string `json:"prompts"`
}

// State は検索ウィジェットの現在の状態を返す。
// GET /api/search
func (h *SearchHandler) State(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, widget.Snapshot())
}

// Search はクエリで検索し、結果を含む状態を返す。空白のみのクエリは何もしない。
// POST /api/search (JSON {query} またはフォーム query)
// フォーム送信の場合はホーム画面へリダイレクトする。
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if isFormRequest(r) {
		req.Query = r.PostFormValue("query")
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, model.NewInvalidRequestError(err.Error()))
		return
	}

	if err := widget.Search(r.Context(), req.Query); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("search failed", slog.String("error", err.Error()))
		writeAPIError(w, model.NewSearchFailedError())
		return
	}

	h.respondState(w, r, widget)
}

// Clear はクエリと結果を消去する。
// POST /api/search/clear
func (h *SearchHandler) Clear(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}
	widget.Clear()
	h.respondState(w, r, widget)
}

// Prompts は質問例を選び直して返す。
// GET /api/search/prompts
func (h *SearchHandler) Prompts(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, promptsResponse{Prompts: widget.SuggestPrompts()})
}

// ToggleVoice は音声入力の待ち受けを開始または停止する。
// POST /api/search/voice/toggle
func (h *SearchHandler) ToggleVoice(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}
	if !widget.VoiceAvailable() {
		writeAPIError(w, model.NewVoiceUnavailableError())
		return
	}

	// 待ち受けはリクエストの完了後も続く
	listening := widget.ToggleListening(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, toggleResponse{Listening: listening, State: widget.Snapshot()})
}

// Voice はブラウザで認識された文字列を受け取る。認識結果で検索が始まり、結果はGET /api/searchで取得する。
// POST /api/search/voice (JSON {transcript} または {error})
func (h *SearchHandler) Voice(w http.ResponseWriter, r *http.Request) {
	widget, ok := h.widget(w, r)
	if !ok {
		return
	}

	var req voiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, model.NewInvalidRequestError(err.Error()))
		return
	}

	var err error
	if req.Error != "" {
		err = widget.FailListening(req.Error)
	} else {
		err = deliverTranscript(r.Context(), widget, req.Transcript)
	}

	switch {
	case errors.Is(err, search.ErrVoiceUnavailable):
		writeAPIError(w, model.NewVoiceUnavailableError())
	case errors.Is(err, search.ErrNotListening):
		writeAPIError(w, model.NewNotListeningError())
	case err != nil:
		slog.Warn("failed to deliver transcript", slog.String("error", err.Error()))
		writeAPIError(w, model.NewNotListeningError())
	default:
		writeJSON(w, http.StatusAccepted, widget.Snapshot())
	}
}

func (h *SearchHandler) widget(w http.ResponseWriter, r *http.Request) (*search.Widget, bool) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return nil, false
	}
	return h.widgets.Get(clientID), true
}

// respondState はフォーム送信の場合はホーム画面へ、それ以外は状態のJSONを返す。
func (h *SearchHandler) respondState(w http.ResponseWriter, r *http.Request, widget *search.Widget) {
	if isFormRequest(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, widget.Snapshot())
}

// deliverTranscript は認識結果を待機中の音声認識に渡す。
// 待ち受けの開始直後は認識の待機が始まっていないことがあるため、待ち受け中の間は短時間だけ再試行する。
func deliverTranscript(ctx context.Context, widget *search.Widget, transcript string) error {
	deadline := time.NewTimer(transcriptWait)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		err := widget.DeliverTranscript(transcript)
		if !errors.Is(err, search.ErrNotListening) || !widget.Snapshot().IsListening {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return err
		case <-ticker.C:
		}
	}
}

// isFormRequest はHTMLフォームからの送信かどうかを返す。
func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}
