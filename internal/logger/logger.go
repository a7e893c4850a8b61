package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// RedactedValue は秘匿属性の値を置き換える文字列。
const RedactedValue = "[REDACTED]"

// level は全ロガー共通の出力レベル。設定の読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// sensitiveKeys はログに値を出力しない属性キー。
var sensitiveKeys = map[string]bool{
	"password":      true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"anon_key":      true,
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// SetLevel はログレベルを名前（debug, info, warn, error）で設定する。
// 不正な名前の場合はレベルを変更せずエラーを返す。
func SetLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.Set(l)
	return nil
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, RedactedValue)
	}
	return a
}
