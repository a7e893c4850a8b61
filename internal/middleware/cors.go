package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// NewCORSMiddleware はJSON APIのCORSミドルウェアを返す。
// Cookieを使用するため、許可するオリジンは1つに限定する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", csrfHeaderName},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
