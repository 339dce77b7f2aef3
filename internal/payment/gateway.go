package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout-core/internal/apiclient"
	"checkout-core/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gateway is the external payment provider. It is a separate trust boundary
// from the commerce backend: payment success is read from GetStatus only.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResponse, error)
	GetStatus(ctx context.Context, intentID string) (*StatusResponse, error)
}

type gatewayClient struct {
	api     *apiclient.Client
	limiter *rate.Limiter
	tracker *StatusTracker
}

type GatewayOption func(*gatewayClient)

// WithStatusRate throttles GetStatus calls. The default allows a burst of
// two and then one call every 250ms.
func WithStatusRate(limit rate.Limit, burst int) GatewayOption {
	return func(g *gatewayClient) { g.limiter = rate.NewLimiter(limit, burst) }
}

func WithTracker(t *StatusTracker) GatewayOption {
	return func(g *gatewayClient) { g.tracker = t }
}

func NewGatewayClient(api *apiclient.Client, opts ...GatewayOption) Gateway {
	g := &gatewayClient{
		api:     api,
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
		tracker: NewStatusTracker(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ----------------- CreateIntent -----------------

func (g *gatewayClient) CreateIntent(ctx context.Context, in CreateIntentRequest) (*IntentResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "CreateIntent"),
		zap.String("cart_id", in.CartID),
		zap.Int64("amount", in.Amount),
	)

	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.CartID) == "" {
		return nil, ErrMissingOwner
	}

	path := fmt.Sprintf("/public/users/%s/carts/%s/payments/intents",
		url.PathEscape(in.Email), url.PathEscape(in.CartID))

	log.Info("creating payment intent")

	var raw apiclient.Fields
	if err := g.api.Do(ctx, http.MethodPost, path, in, &raw, nil); err != nil {
		log.Error("create intent failed", zap.Error(err))
		return nil, fmt.Errorf("create intent: %w", err)
	}

	res := &IntentResponse{
		IntentID:    raw.String("intentId", "orderId", "id", "data.intentId", "data.orderId"),
		RedirectURL: redirectOf(raw),
	}
	if res.IntentID == "" {
		log.Error("gateway response missing intent id")
		return nil, ErrMissingIntentID
	}
	if res.RedirectURL == "" {
		log.Warn("intent has no redirect url, asking the signer")
		signed, err := g.sign(ctx, in, res.IntentID)
		if err != nil {
			log.Error("signer failed", zap.Error(err))
			return nil, err
		}
		res.RedirectURL = signed
	}

	log.Info("payment intent created", zap.String("intent_id", res.IntentID))
	return res, nil
}

func redirectOf(raw apiclient.Fields) string {
	return raw.String("payUrl", "paymentUrl", "redirectUrl", "vnpUrl",
		"data.payUrl", "data.paymentUrl", "data.redirectUrl", "data.vnpUrl")
}

type signRequest struct {
	Amount    int64  `json:"amount"`
	Items     []Item `json:"items"`
	OrderID   string `json:"orderId"`
	Locale    string `json:"locale"`
	ReturnURL string `json:"returnUrl"`
}

// sign asks the gateway's signer for a redirect URL over an existing intent.
func (g *gatewayClient) sign(ctx context.Context, in CreateIntentRequest, intentID string) (string, error) {
	path := fmt.Sprintf("/public/users/%s/carts/%s/payments/vnpay/order?amount=%d",
		url.PathEscape(in.Email), url.PathEscape(in.CartID), in.Amount)
	body := signRequest{
		Amount:    in.Amount,
		Items:     in.Items,
		OrderID:   intentID,
		Locale:    "vn",
		ReturnURL: in.ReturnURL,
	}

	var raw apiclient.Fields
	if err := g.api.Do(ctx, http.MethodPost, path, body, &raw, nil); err != nil {
		return "", fmt.Errorf("sign intent: %w", err)
	}
	u := redirectOf(raw)
	if u == "" {
		return "", ErrMissingRedirectURL
	}
	return u, nil
}

// Forget drops what the client remembers about intentID.
func (g *gatewayClient) Forget(intentID string) {
	g.tracker.Forget(intentID)
}

// ----------------- GetStatus -----------------

func (g *gatewayClient) GetStatus(ctx context.Context, intentID string) (*StatusResponse, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, ErrMissingIntent
	}
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "GetStatus"),
		zap.String("intent_id", intentID),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var raw apiclient.Fields
	if err := g.api.Do(ctx, http.MethodGet, "/payments/intents/"+url.PathEscape(intentID), nil, &raw, nil); err != nil {
		log.Warn("status read failed", zap.Error(err))
		return nil, fmt.Errorf("get intent status: %w", err)
	}

	observed := ParseStatus(raw.String("status", "data.status"))
	amount, _ := raw.Int("amount", "data.amount")

	res := &StatusResponse{
		IntentID: intentID,
		Status:   g.tracker.Observe(ctx, intentID, observed),
		Amount:   amount,
	}
	log.Debug("intent status", zap.String("status", string(res.Status)))
	return res, nil
}
