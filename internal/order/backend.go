package order

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"checkout-core/internal/apiclient"
	"checkout-core/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend is the commerce backend's order API.
type Backend interface {
	Finalize(ctx context.Context, email, cartID string, req FinalizeRequest) (*Order, error)
	GetOrder(ctx context.Context, email, orderID string) (*Order, error)
	ListOrders(ctx context.Context, email string) ([]*Order, error)
	LatestOrder(ctx context.Context, email string) (*Order, error)
}

type httpBackend struct {
	api *apiclient.Client
}

func NewHTTPBackend(api *apiclient.Client) Backend {
	return &httpBackend{api: api}
}

// Finalize posts the order. The intent id travels in the body and as the
// Idempotency-Key header so a retried call maps to the same order.
func (b *httpBackend) Finalize(ctx context.Context, email, cartID string, req FinalizeRequest) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "order_backend"),
		zap.String("method", "Finalize"),
		zap.String("intent_id", req.IntentID),
	)

	path := fmt.Sprintf("/public/users/%s/carts/%s/orders/finalize", url.PathEscape(email), url.PathEscape(cartID))
	header := http.Header{}
	header.Set("Idempotency-Key", req.IntentID)
	header.Set("X-Request-ID", uuid.NewString())

	var raw apiclient.Fields
	if err := b.api.Do(ctx, http.MethodPost, path, req, &raw, header); err != nil {
		log.Error("finalize request failed", zap.Error(err))
		return nil, fmt.Errorf("finalize order: %w", err)
	}
	if raw == nil {
		raw = apiclient.Fields{}
	}
	return MapOrder(raw), nil
}

func (b *httpBackend) GetOrder(ctx context.Context, email, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, ErrMissingOrderID
	}
	path := fmt.Sprintf("/public/users/%s/orders/%s", url.PathEscape(email), url.PathEscape(orderID))

	var raw apiclient.Fields
	if err := b.api.Do(ctx, http.MethodGet, path, nil, &raw, nil); err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if raw == nil {
		return nil, ErrOrderNotFound
	}
	return MapOrder(raw), nil
}

func (b *httpBackend) ListOrders(ctx context.Context, email string) ([]*Order, error) {
	path := fmt.Sprintf("/public/users/%s/orders", url.PathEscape(email))

	var raw any
	if err := b.api.Do(ctx, http.MethodGet, path, nil, &raw, nil); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	switch v := raw.(type) {
	case []any:
		return MapOrders(apiclient.Fields{"orders": v}), nil
	case map[string]any:
		return MapOrders(apiclient.Fields(v)), nil
	default:
		return nil, nil
	}
}

// LatestOrder returns the most recently created order of the user.
func (b *httpBackend) LatestOrder(ctx context.Context, email string) (*Order, error) {
	orders, err := b.ListOrders(ctx, email)
	if err != nil {
		return nil, err
	}
	return latest(orders)
}

func latest(orders []*Order) (*Order, error) {
	var best *Order
	for _, o := range orders {
		if o.OrderID == "" {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	if best == nil {
		return nil, ErrNoOrders
	}
	return best, nil
}
