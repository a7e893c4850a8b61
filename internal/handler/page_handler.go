package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/fundori/fundori/internal/auth"
	"github.com/fundori/fundori/internal/content"
	"github.com/fundori/fundori/internal/middleware"
	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/search"
	"github.com/fundori/fundori/internal/security"
	"github.com/fundori/fundori/internal/view"
)

// targetLabelLayout はホーム画面に表示する試験日の書式。
const targetLabelLayout = "2 January 2006"

// PageHandler はHTML画面のハンドラー。
type PageHandler struct {
	gateway   AuthGateway
	messages  FormMessageStore
	countdown CountdownSource
	searches  WidgetRegistry
	catalog   []content.Subject
	sanitizer security.TextSanitizer
}

// NewPageHandler はPageHandlerを生成する。catalogがnilの場合は組み込みの過去問一覧を使用する。
func NewPageHandler(gateway AuthGateway, messages FormMessageStore, cd CountdownSource, searches WidgetRegistry, catalog []content.Subject, sanitizer security.TextSanitizer) *PageHandler {
	if catalog == nil {
		catalog = content.Catalog()
	}
	return &PageHandler{
		gateway:   gateway,
		messages:  messages,
		countdown: cd,
		searches:  searches,
		catalog:   catalog,
		sanitizer: sanitizer,
	}
}

// Index は認証状態に応じてランディング画面またはホーム画面を返す。
// GET /?tab=all|popular|recent
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	session, err := h.gateway.GetSession(r.Context(), clientID)
	if err != nil {
		slog.Warn("failed to get session for page",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	var user *model.User
	if session != nil {
		user = session.User
	}

	switch view.Select(auth.StateOf(user)) {
	case view.PageHome:
		h.home(w, r, clientID, user)
	default:
		h.landing(w, r)
	}
}

func (h *PageHandler) landing(w http.ResponseWriter, r *http.Request) {
	data := view.LandingData{
		CSRFToken:   middleware.CSRFTokenFromContext(r.Context()),
		AuthEnabled: h.gateway.Enabled(),
		Message:     h.messages.PopFormMessage(w, r),
	}
	templ.Handler(view.Landing(data)).ServeHTTP(w, r)
}

func (h *PageHandler) home(w http.ResponseWriter, r *http.Request, clientID string, user *model.User) {
	// 画面ではタブの指定が不正な場合は全件を表示する
	tab, err := content.ParseTab(r.URL.Query().Get("tab"))
	if err != nil {
		tab = content.TabAll
	}
	subjects, err := content.Filter(h.catalog, tab)
	if err != nil {
		subjects = h.catalog
	}

	name := h.sanitizer.Sanitize(user.DisplayName())

	data := view.HomeData{
		CSRFToken:   middleware.CSRFTokenFromContext(r.Context()),
		DisplayName: name,
		Email:       user.Email,
		Motivation:  search.MotivationalMessage(name),
		Countdown:   h.countdown.Snapshot(),
		TargetLabel: h.countdown.Target().Format(targetLabelLayout),
		Search:      h.searches.Get(clientID).Snapshot(),
		Tab:         tab,
		Subjects:    subjects,
	}
	templ.Handler(view.Home(data)).ServeHTTP(w, r)
}
