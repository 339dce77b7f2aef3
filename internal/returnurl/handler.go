package returnurl

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// Sink receives outcomes read by the HTTP return endpoint.
type Sink interface {
	Deliver(ctx context.Context, o Outcome) error
}

type SinkFunc func(ctx context.Context, o Outcome) error

func (f SinkFunc) Deliver(ctx context.Context, o Outcome) error { return f(ctx, o) }

var ErrUnknownIntent = errors.New("no checkout attempt for intent")

// Handler is the web embodiment: the provider redirects the browser here
// and the outcome is read from the query. The close URL itself is never
// fetched; the browser is sent to redirectTo, or shown a short page.
type Handler struct {
	sink       Sink
	secret     string
	redirectTo string
}

func NewHandler(sink Sink, secret, redirectTo string) *Handler {
	return &Handler{sink: sink, secret: secret, redirectTo: redirectTo}
}

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Payment</title></head>
<body><p>{{.}}</p></body></html>
`))

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("layer", "returnurl"))

	q := r.URL.Query()
	if !HasOutcome(q) {
		http.Error(w, "missing payment outcome", http.StatusBadRequest)
		return
	}

	o := FromQuery(q, h.secret, "")
	log.Info("payment return received",
		zap.String("intent_id", o.IntentID),
		zap.String("rcode", o.RCode),
		zap.Bool("signed", o.Signed),
	)

	if err := h.sink.Deliver(r.Context(), o); err != nil {
		if errors.Is(err, ErrUnknownIntent) {
			http.Error(w, "unknown payment attempt", http.StatusNotFound)
			return
		}
		log.Error("failed to deliver payment outcome", zap.Error(err))
		http.Error(w, "failed to process payment return", http.StatusInternalServerError)
		return
	}

	if h.redirectTo != "" {
		http.Redirect(w, r, h.redirectTo, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = returnPage.Execute(w, "Payment received. Your order status will update shortly.")
}
