package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/search"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withClientID(req, "client-1")
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) search.State {
	t.Helper()
	var state search.State
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	return state
}

func TestSearch_JSONReturnsResults(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.Search(w, jsonRequest(http.MethodPost, "/api/search", `{"query":"photosynthesis"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	state := decodeState(t, w)
	if state.Query != "photosynthesis" || state.IsSearching || !state.ShowResults {
		t.Errorf("state = %+v", state)
	}
	if len(state.Results) != 3 || state.Results[0].Title != "Understanding photosynthesis" {
		t.Errorf("results = %+v", state.Results)
	}
}

func TestSearch_WhitespaceIsNoop(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.Search(w, jsonRequest(http.MethodPost, "/api/search", `{"query":"   "}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	state := decodeState(t, w)
	if state.ShowResults || state.IsSearching || len(state.Results) != 0 {
		t.Errorf("state = %+v, want untouched widget", state)
	}
}

func TestSearch_MalformedJSON(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.Search(w, jsonRequest(http.MethodPost, "/api/search", `{"query":`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q", body.Code)
	}
}

func TestSearch_FormRedirectsHome(t *testing.T) {
	reg := newTestRegistry(t)
	h := NewSearchHandler(reg)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(url.Values{"query": {"algebra"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Search(w, withClientID(req, "client-1"))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("status = %d Location = %q, want 303 /", w.Code, w.Header().Get("Location"))
	}
	if got := reg.Get("client-1").Snapshot().Query; got != "algebra" {
		t.Errorf("query = %q, want algebra", got)
	}
}

func TestSearch_SanitizesQuery(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.Search(w, jsonRequest(http.MethodPost, "/api/search", `{"query":"<b>cells</b>"}`))

	if state := decodeState(t, w); state.Query != "cells" {
		t.Errorf("query = %q, want cells", state.Query)
	}
}

func TestClearAndState(t *testing.T) {
	reg := newTestRegistry(t)
	h := NewSearchHandler(reg)
	reg.Get("client-1").Search(context.Background(), "vectors")

	w := httptest.NewRecorder()
	h.Clear(w, jsonRequest(http.MethodPost, "/api/search/clear", ""))

	state := decodeState(t, w)
	if state.Query != "" || state.ShowResults || len(state.Results) != 0 {
		t.Errorf("state after clear = %+v", state)
	}
	if len(state.Prompts) != 4 {
		t.Errorf("prompts = %d, want 4", len(state.Prompts))
	}

	w = httptest.NewRecorder()
	h.State(w, withClientID(httptest.NewRequest(http.MethodGet, "/api/search", nil), "client-1"))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestPrompts(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.Prompts(w, withClientID(httptest.NewRequest(http.MethodGet, "/api/search/prompts", nil), "client-1"))

	var body promptsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Prompts) != 4 {
		t.Errorf("prompts = %v, want 4 items", body.Prompts)
	}
	curriculum := map[string]bool{}
	for _, p := range search.CurriculumPrompts() {
		curriculum[p] = true
	}
	for _, p := range body.Prompts {
		if !curriculum[p] {
			t.Errorf("unexpected prompt %q", p)
		}
	}
}

func TestToggleVoice_Unavailable(t *testing.T) {
	h := NewSearchHandler(newTestRegistry(t))

	w := httptest.NewRecorder()
	h.ToggleVoice(w, jsonRequest(http.MethodPost, "/api/search/voice/toggle", ""))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeVoiceDisabled {
		t.Errorf("code = %q", body.Code)
	}
}

func TestVoice_TranscriptRunsSearch(t *testing.T) {
	reg := newTestRegistry(t, search.WithRecognizer(search.NewTranscriptRecognizer()))
	h := NewSearchHandler(reg)

	w := httptest.NewRecorder()
	h.ToggleVoice(w, jsonRequest(http.MethodPost, "/api/search/voice/toggle", ""))
	var toggle toggleResponse
	json.NewDecoder(w.Body).Decode(&toggle)
	if !toggle.Listening {
		t.Fatal("expected listening after toggle")
	}

	w = httptest.NewRecorder()
	h.Voice(w, jsonRequest(http.MethodPost, "/api/search/voice", `{"transcript":"trigonometry"}`))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}

	widget := reg.Get("client-1")
	waitUntil(t, func() bool {
		s := widget.Snapshot()
		return s.Query == "trigonometry" && !s.IsSearching && len(s.Results) == 3
	})
	if widget.Snapshot().IsListening {
		t.Error("listening should be cleared after a transcript")
	}
}

func TestVoice_NotListening(t *testing.T) {
	reg := newTestRegistry(t, search.WithRecognizer(search.NewTranscriptRecognizer()))
	h := NewSearchHandler(reg)

	w := httptest.NewRecorder()
	h.Voice(w, jsonRequest(http.MethodPost, "/api/search/voice", `{"transcript":"x"}`))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestVoice_ErrorStopsListening(t *testing.T) {
	// ended はブラウザが結果もエラーもなく認識を終えた場合に送られる
	for _, reason := range []string{"no-speech", "ended"} {
		t.Run(reason, func(t *testing.T) {
			reg := newTestRegistry(t, search.WithRecognizer(search.NewTranscriptRecognizer()))
			h := NewSearchHandler(reg)

			h.ToggleVoice(httptest.NewRecorder(), jsonRequest(http.MethodPost, "/api/search/voice/toggle", ""))
			widget := reg.Get("client-1")

			// 認識の待機が始まるまで再試行する
			waitUntil(t, func() bool {
				w := httptest.NewRecorder()
				h.Voice(w, jsonRequest(http.MethodPost, "/api/search/voice", `{"error":"`+reason+`"}`))
				return w.Code == http.StatusAccepted
			})
			waitUntil(t, func() bool { return !widget.Snapshot().IsListening })

			// 次のクリックで再び待ち受けを開始できる
			w := httptest.NewRecorder()
			h.ToggleVoice(w, jsonRequest(http.MethodPost, "/api/search/voice/toggle", ""))
			var resp struct {
				Listening bool `json:"listening"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if !resp.Listening {
				t.Error("toggle after a released recognition should start listening")
			}
		})
	}
}
