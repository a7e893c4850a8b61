package view

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/a-h/templ"

	"github.com/fundori/fundori/internal/content"
	"github.com/fundori/fundori/internal/countdown"
	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticHandler は埋め込みの静的ファイルを返すハンドラー。/static/ 配下にマウントする。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"abs": func(n int) int {
		if n < 0 {
			return -n
		}
		return n
	},
	"plural": func(n int, one, many string) string {
		if n == 1 || n == -1 {
			return one
		}
		return many
	},
}).ParseFS(templateFS, "templates/*.html"))

// Feature はランディング画面で紹介する機能。
type Feature struct {
	Title       string
	Description string
}

// Features はランディング画面の機能紹介。
var Features = []Feature{
	{Title: "Comprehensive Study Materials", Description: "Access curated content for all matric subjects"},
	{Title: "Personalized Learning", Description: "AI-powered study plans tailored to your needs"},
	{Title: "Track Progress", Description: "Monitor your improvement with detailed analytics"},
	{Title: "Study Community", Description: "Connect with fellow students and share knowledge"},
}

// LandingData はランディング画面の表示内容。
type LandingData struct {
	CSRFToken   string
	AuthEnabled bool
	// Message はフォームに表示する1件のメッセージ。無い場合はnil。
	Message  *model.FormMessage
	Features []Feature
}

// MessageFor は指定したフォームに表示するメッセージを返す。
func (d LandingData) MessageFor(form string) *model.FormMessage {
	if d.Message == nil || string(d.Message.Form) != form {
		return nil
	}
	return d.Message
}

// HomeData はホーム画面の表示内容。
type HomeData struct {
	CSRFToken   string
	DisplayName string
	Email       string
	Motivation  string
	Countdown   countdown.State
	TargetLabel string
	Search      search.State
	Tab         content.Tab
	Tabs        []content.Tab
	Subjects    []content.Subject
}

// Landing はランディング画面のコンポーネントを返す。
func Landing(data LandingData) templ.Component {
	if data.Features == nil {
		data.Features = Features
	}
	return render("landing.html", data)
}

// Home はホーム画面のコンポーネントを返す。
func Home(data HomeData) templ.Component {
	if data.Tabs == nil {
		data.Tabs = content.Tabs
	}
	return render("home.html", data)
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := pages.ExecuteTemplate(w, name, data); err != nil {
			return fmt.Errorf("failed to render %s: %w", name, err)
		}
		return nil
	})
}
