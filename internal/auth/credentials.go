package auth

import (
	"context"
	"errors"
)

var (
	ErrNoCredentials = errors.New("no credentials")
	ErrInvalidToken  = errors.New("invalid access token")
)

// Credentials identify the shopper. CartID may be empty; the cart service
// looks it up by email.
type Credentials struct {
	Email  string
	CartID string
	Token  string
}

// CredentialStore is a read-only lookup of the current shopper.
type CredentialStore interface {
	Credentials(ctx context.Context) (Credentials, error)
}

type ctxKey struct{}

func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(ctxKey{}).(Credentials)
	return c, ok && c.Email != ""
}

// ContextStore reads credentials placed on the request context by the auth
// middleware.
type ContextStore struct{}

func (ContextStore) Credentials(ctx context.Context) (Credentials, error) {
	if c, ok := FromContext(ctx); ok {
		return c, nil
	}
	return Credentials{}, ErrNoCredentials
}

// JWTCredentialStore holds one token, e.g. from the CLI's environment, and
// yields the identity inside it.
type JWTCredentialStore struct {
	token  string
	secret string
}

func NewJWTCredentialStore(token, secret string) *JWTCredentialStore {
	return &JWTCredentialStore{token: token, secret: secret}
}

func (s *JWTCredentialStore) Credentials(ctx context.Context) (Credentials, error) {
	return ParseToken(s.token, s.secret)
}

// StaticStore always returns c. A zero value has no credentials.
type StaticStore Credentials

func (s StaticStore) Credentials(ctx context.Context) (Credentials, error) {
	if s.Email == "" {
		return Credentials{}, ErrNoCredentials
	}
	return Credentials(s), nil
}

// TokenFrom adapts a store to a bearer token source for backend clients.
func TokenFrom(store CredentialStore) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		c, err := store.Credentials(ctx)
		if errors.Is(err, ErrNoCredentials) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return c.Token, nil
	}
}
