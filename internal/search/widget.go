package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/security"
)

// DefaultListenTimeout は1回の音声認識を待つ上限。
const DefaultListenTimeout = 30 * time.Second

// SearchRecorder は検索の結果と所要時間を記録するインターフェース。
type SearchRecorder interface {
	RecordSearch(outcome string, duration time.Duration)
}

// State はウィジェットのある時点の状態。
type State struct {
	Query          string               `json:"query"`
	Results        []model.SearchResult `json:"results"`
	IsSearching    bool                 `json:"is_searching"`
	IsListening    bool                 `json:"is_listening"`
	ShowResults    bool                 `json:"show_results"`
	Prompts        []string             `json:"prompts"`
	VoiceAvailable bool                 `json:"voice_available"`
}

// Widget はクライアント1つ分の検索状態を保持する。
type Widget struct {
	searcher      Searcher
	sanitizer     security.TextSanitizer
	recognizer    Recognizer
	recorder      SearchRecorder
	listenTimeout time.Duration
	logger        *slog.Logger

	mu           sync.Mutex
	query        string
	results      []model.SearchResult
	searching    bool
	showResults  bool
	prompts      []string
	generation   uint64
	listening    bool
	listenGen    uint64
	listenCancel context.CancelFunc
}

// WidgetOption はWidgetの任意設定。
type WidgetOption func(*Widget)

// WithRecognizer は音声認識を設定する。未設定の場合、音声入力は無効になる。
func WithRecognizer(r Recognizer) WidgetOption {
	return func(w *Widget) { w.recognizer = r }
}

// WithSearchRecorder はメトリクス記録先を設定する。
func WithSearchRecorder(r SearchRecorder) WidgetOption {
	return func(w *Widget) { w.recorder = r }
}

// WithListenTimeout は1回の音声認識を待つ上限を設定する。
func WithListenTimeout(d time.Duration) WidgetOption {
	return func(w *Widget) { w.listenTimeout = d }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) WidgetOption {
	return func(w *Widget) { w.logger = logger }
}

// NewWidget はWidgetを生成する。sanitizerがnilの場合は既定のものを使用する。
func NewWidget(searcher Searcher, sanitizer security.TextSanitizer, opts ...WidgetOption) *Widget {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer(0)
	}
	w := &Widget{
		searcher:      searcher,
		sanitizer:     sanitizer,
		listenTimeout: DefaultListenTimeout,
		logger:        slog.Default(),
		results:       []model.SearchResult{},
		prompts:       SamplePrompts(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Search はクエリで検索する。空白のみのクエリは何もしない。
// 検索中にClearまたは別の検索が行われた場合、遅れて届いた結果は破棄する。
func (w *Widget) Search(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	q := w.sanitizer.Sanitize(query)
	if q == "" {
		return nil
	}

	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.query = q
	w.searching = true
	w.showResults = true
	w.mu.Unlock()

	start := time.Now()
	results, err := w.searcher.Search(ctx, q)
	elapsed := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation {
		w.record("superseded", elapsed)
		return nil
	}

	w.searching = false
	if err != nil {
		w.results = []model.SearchResult{}
		w.record("error", elapsed)
		return err
	}

	w.results = results
	w.record("success", elapsed)
	return nil
}

// Clear はクエリと結果を消去し、質問例を選び直す。実行中の検索の結果は破棄される。
func (w *Widget) Clear() {
	prompts := SamplePrompts()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.generation++
	w.query = ""
	w.results = []model.SearchResult{}
	w.searching = false
	w.showResults = false
	w.prompts = prompts
}

// SuggestPrompts は質問例を選び直して返す。
func (w *Widget) SuggestPrompts() []string {
	prompts := SamplePrompts()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prompts = prompts
	return copyStrings(prompts)
}

// VoiceAvailable は音声入力が利用可能かどうかを返す。
func (w *Widget) VoiceAvailable() bool {
	return w.recognizer != nil
}

// ToggleListening は音声認識を開始または停止し、開始した場合にtrueを返す。
// 音声認識が設定されていない場合は何もせずfalseを返す。
// 認識結果はクエリを置き換えて検索する。認識の終了時やエラー時は待ち受けを解除する。
func (w *Widget) ToggleListening(ctx context.Context) bool {
	if w.recognizer == nil {
		return false
	}

	w.mu.Lock()
	if w.listening {
		cancel := w.listenCancel
		w.listening = false
		w.listenCancel = nil
		w.mu.Unlock()
		cancel()
		return false
	}

	listenCtx, cancel := context.WithTimeout(ctx, w.listenTimeout)
	w.listenGen++
	gen := w.listenGen
	w.listening = true
	w.listenCancel = cancel
	w.mu.Unlock()

	go w.listen(ctx, listenCtx, cancel, gen)
	return true
}

func (w *Widget) listen(ctx, listenCtx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	transcript, err := w.recognizer.Recognize(listenCtx)

	w.mu.Lock()
	current := w.listening && w.listenGen == gen
	if current {
		w.listening = false
		w.listenCancel = nil
	}
	w.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("voice recognition ended with error", slog.String("error", err.Error()))
		}
		return
	}
	if !current {
		return
	}

	if err := w.Search(ctx, transcript); err != nil {
		w.logger.Warn("search from voice input failed", slog.String("error", err.Error()))
	}
}

// DeliverTranscript はブラウザで認識された文字列を待機中の音声認識に渡す。
func (w *Widget) DeliverTranscript(transcript string) error {
	sink, ok := w.recognizer.(TranscriptSink)
	if !ok {
		return ErrVoiceUnavailable
	}
	if !sink.Deliver(transcript) {
		return ErrNotListening
	}
	return nil
}

// FailListening はブラウザ側の認識エラーを待機中の音声認識に伝える。
func (w *Widget) FailListening(reason string) error {
	sink, ok := w.recognizer.(TranscriptSink)
	if !ok {
		return ErrVoiceUnavailable
	}
	if !sink.Fail(errors.New("recognition failed: " + reason)) {
		return ErrNotListening
	}
	return nil
}

// Snapshot は現在の状態を返す。
func (w *Widget) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	results := make([]model.SearchResult, len(w.results))
	copy(results, w.results)

	return State{
		Query:          w.query,
		Results:        results,
		IsSearching:    w.searching,
		IsListening:    w.listening,
		ShowResults:    w.showResults,
		Prompts:        copyStrings(w.prompts),
		VoiceAvailable: w.recognizer != nil,
	}
}

// Close は実行中の音声認識を停止する。
func (w *Widget) Close() {
	w.mu.Lock()
	cancel := w.listenCancel
	w.listening = false
	w.listenCancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (w *Widget) record(outcome string, d time.Duration) {
	if w.recorder != nil {
		w.recorder.RecordSearch(outcome, d)
	}
}

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
