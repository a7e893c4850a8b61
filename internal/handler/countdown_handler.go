package handler

import (
	"net/http"

	"github.com/fundori/fundori/internal/countdown"
)

// CountdownHandler は試験日までのカウントダウンのハンドラー。
type CountdownHandler struct {
	source CountdownSource
}

// NewCountdownHandler はCountdownHandlerを生成する。
func NewCountdownHandler(source CountdownSource) *CountdownHandler {
	return &CountdownHandler{source: source}
}

type countdownResponse struct {
	TargetDate    string `json:"target_date"`
	DaysRemaining int    `json:"days_remaining"`
	JustChanged   bool   `json:"just_changed"`
}

// Get は現在のカウントダウンを返す。
// GET /api/countdown
func (h *CountdownHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.source.Snapshot()
	writeJSON(w, http.StatusOK, countdownResponse{
		TargetDate:    h.source.Target().Format(countdown.DateLayout),
		DaysRemaining: state.DaysRemaining,
		JustChanged:   state.JustChanged,
	})
}
