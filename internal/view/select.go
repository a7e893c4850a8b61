// Package view はランディング画面とホーム画面の選択と描画を提供する。
package view

import "github.com/fundori/fundori/internal/auth"

// Page は表示する画面。
type Page string

const (
	PageLanding Page = "landing"
	PageHome    Page = "home"
)

// Select は認証状態から表示する画面を選ぶ。
// 認証済みの場合のみホーム画面とし、初期化中と未認証はランディング画面とする。
func Select(state auth.State) Page {
	if state == auth.StateAuthenticated {
		return PageHome
	}
	return PageLanding
}
