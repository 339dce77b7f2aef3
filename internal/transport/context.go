// Package transport carries the HTTP exchange through a context so code
// below the handler can steer the browser.
package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

type ctxKey string

const (
	requestKey        ctxKey = "httpRequest"
	responseWriterKey ctxKey = "httpResponseWriter"
)

var (
	ErrNoResponseWriter = errors.New("no http response writer in context")
	ErrInvalidTarget    = errors.New("navigation target must be an absolute http(s) url")
)

func WithHTTP(ctx context.Context, r *http.Request, w http.ResponseWriter) context.Context {
	ctx = context.WithValue(ctx, requestKey, r)
	ctx = context.WithValue(ctx, responseWriterKey, w)
	return ctx
}

func GetRequest(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestKey).(*http.Request)
	return r
}

func GetResponseWriter(ctx context.Context) http.ResponseWriter {
	w, _ := ctx.Value(responseWriterKey).(http.ResponseWriter)
	return w
}

// Navigate points the browser of the current exchange at target by setting
// the Location header. The handler picks the status code.
func Navigate(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") {
		return ErrInvalidTarget
	}
	w := GetResponseWriter(ctx)
	if w == nil {
		return ErrNoResponseWriter
	}
	w.Header().Set("Location", u.String())
	return nil
}

// WantsHTML reports whether the current request came from a browser
// navigation rather than a script.
func WantsHTML(ctx context.Context) bool {
	r := GetRequest(ctx)
	if r == nil {
		return false
	}
	for _, v := range r.Header.Values("Accept") {
		if mt := firstMediaType(v); mt == "text/html" {
			return true
		}
	}
	return false
}

func firstMediaType(accept string) string {
	for i := 0; i < len(accept); i++ {
		if accept[i] == ',' || accept[i] == ';' {
			return accept[:i]
		}
	}
	return accept
}
