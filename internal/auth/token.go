package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const AccessTokenCookie = "access_token"

// ExtractAccessToken reads the bearer token from the access_token cookie,
// falling back to the Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// ParseToken validates an HS256 token and reads the shopper's identity
// from its claims. The token itself is kept so backend calls can forward it.
func ParseToken(tokenStr, secret string) (Credentials, error) {
	if tokenStr == "" {
		return Credentials{}, ErrNoCredentials
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Credentials{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return Credentials{}, fmt.Errorf("%w: email claim missing", ErrInvalidToken)
	}

	c := Credentials{Email: email, Token: tokenStr}
	switch v := claims["cart_id"].(type) {
	case string:
		c.CartID = v
	case float64:
		c.CartID = fmt.Sprintf("%.0f", v)
	}
	return c, nil
}

// IssueToken signs a token for email. Used by the CLI and tests.
func IssueToken(secret, email, cartID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	if cartID != "" {
		claims["cart_id"] = cartID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
