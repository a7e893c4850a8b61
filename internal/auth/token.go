package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims はアクセストークンから取り出したクレーム。
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenInspector はIdPが発行したアクセストークン（JWT）を検査する。
// secretが設定されている場合はHS256署名を検証し、未設定の場合は署名を検証せずに読み取る。
type TokenInspector struct {
	secret []byte
}

// NewTokenInspector はTokenInspectorを生成する。
func NewTokenInspector(secret string) *TokenInspector {
	ti := &TokenInspector{}
	if secret != "" {
		ti.secret = []byte(secret)
	}
	return ti
}

// Verifies は署名検証が有効かどうかを返す。
func (ti *TokenInspector) Verifies() bool {
	return ti != nil && len(ti.secret) > 0
}

// Inspect はトークンのクレームを返す。
// 有効期限の判定は呼び出し側で行うため、ここではexpの検証を行わない。
func (ti *TokenInspector) Inspect(token string) (*TokenClaims, error) {
	if token == "" {
		return nil, errors.New("empty token")
	}

	claims := &jwt.RegisteredClaims{}

	if ti.Verifies() {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
			return ti.secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("invalid access token: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("malformed access token: %w", err)
		}
	}

	result := &TokenClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}
