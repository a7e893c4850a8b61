package handler

import (
	"net/http"

	"github.com/fundori/fundori/internal/content"
	"github.com/fundori/fundori/internal/model"
)

// ContentHandler は過去問一覧のハンドラー。
type ContentHandler struct {
	catalog []content.Subject
}

// NewContentHandler はContentHandlerを生成する。catalogがnilの場合は組み込みの過去問一覧を使用する。
func NewContentHandler(catalog []content.Subject) *ContentHandler {
	if catalog == nil {
		catalog = content.Catalog()
	}
	return &ContentHandler{catalog: catalog}
}

type papersResponse struct {
	Tab        content.Tab       `json:"tab"`
	Subjects   []content.Subject `json:"subjects"`
	PaperCount int               `json:"paper_count"`
}

// ListPapers はタブで絞り込んだ過去問一覧を返す。
// GET /api/papers?tab=all|popular|recent
func (h *ContentHandler) ListPapers(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tab")
	tab, err := content.ParseTab(raw)
	if err != nil {
		writeAPIError(w, model.NewInvalidTabError(raw))
		return
	}

	subjects, err := content.Filter(h.catalog, tab)
	if err != nil {
		writeAPIError(w, model.NewInvalidTabError(raw))
		return
	}

	writeJSON(w, http.StatusOK, papersResponse{
		Tab:        tab,
		Subjects:   subjects,
		PaperCount: content.PaperCount(subjects),
	})
}
