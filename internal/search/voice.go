package search

import (
	"context"
	"errors"
	"sync"
)

// ErrNotListening は音声認識を開始していない状態で認識結果が届いたことを示す。
var ErrNotListening = errors.New("voice recognition is not listening")

// ErrVoiceUnavailable は音声入力が利用できないことを示す。
var ErrVoiceUnavailable = errors.New("voice input is not available")

// Recognizer は1回分（非連続）の音声認識を行うインターフェース。
type Recognizer interface {
	// Recognize は認識結果の文字列を返す。ctxがキャンセルされると中断する。
	Recognize(ctx context.Context) (string, error)
}

// TranscriptSink はブラウザ側で認識された文字列を受け取るRecognizer。
type TranscriptSink interface {
	Recognizer
	// Deliver は待機中の認識に結果を渡す。待機中の認識が無い場合はfalseを返す。
	Deliver(transcript string) bool
	// Fail は待機中の認識をエラーで終了させる。待機中の認識が無い場合はfalseを返す。
	Fail(err error) bool
}

type recognition struct {
	transcript string
	err        error
}

// TranscriptRecognizer はHTTP経由で届いた認識結果を待ち受けるRecognizer。
// 音声の取得と認識はブラウザが行い、サーバーは結果のみを受け取る。
type TranscriptRecognizer struct {
	mu      sync.Mutex
	pending chan recognition
}

// NewTranscriptRecognizer はTranscriptRecognizerを生成する。
func NewTranscriptRecognizer() *TranscriptRecognizer {
	return &TranscriptRecognizer{}
}

// Recognize は結果が届くかctxが終了するまで待つ。
func (r *TranscriptRecognizer) Recognize(ctx context.Context) (string, error) {
	ch := make(chan recognition, 1)

	r.mu.Lock()
	r.pending = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.pending == ch {
			r.pending = nil
		}
		r.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res.transcript, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver は待機中の認識に結果を渡す。
func (r *TranscriptRecognizer) Deliver(transcript string) bool {
	return r.complete(recognition{transcript: transcript})
}

// Fail は待機中の認識をエラーで終了させる。
func (r *TranscriptRecognizer) Fail(err error) bool {
	return r.complete(recognition{err: err})
}

func (r *TranscriptRecognizer) complete(res recognition) bool {
	r.mu.Lock()
	ch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- res
	return true
}

// compile-time interface check
var _ TranscriptSink = (*TranscriptRecognizer)(nil)
