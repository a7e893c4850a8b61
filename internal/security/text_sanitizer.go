// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザーが入力した文字列（検索クエリ、氏名、音声認識の結果）から
// HTMLを取り除き、プレーンテキストとして安全に扱える形に正規化する。
// bluemondayのStrictPolicyを使用し、すべてのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxLength は正規化後の文字列の最大長（文字数）。
const DefaultMaxLength = 500

// TextSanitizer はユーザー入力をプレーンテキストに正規化するインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、連続する空白を1つにまとめ、前後の空白を取り除く。
	// 最大長を超える部分は切り捨てる。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
type textSanitizer struct {
	policy *bluemonday.Policy
	maxLen int
}

// NewTextSanitizer はTextSanitizerを生成する。maxLenが0以下の場合はDefaultMaxLengthを使用する。
func NewTextSanitizer(maxLen int) TextSanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
		maxLen: maxLen,
	}
}

// Sanitize はユーザー入力をプレーンテキストに正規化する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	// StrictPolicyは&や引用符をエスケープするため、テキストとして扱えるよう戻す
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > s.maxLen {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxLen]))
	}
	return text
}

// compile-time interface check
var _ TextSanitizer = (*textSanitizer)(nil)
