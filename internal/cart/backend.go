package cart

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"checkout-core/internal/apiclient"
)

// Backend is the remote cart. Mutations are keyed by (cartId, productId), not
// by the local line key.
type Backend interface {
	GetCart(ctx context.Context, owner Owner) ([]Line, error)
	CartIDByEmail(ctx context.Context, email string) (string, error)
	AddProduct(ctx context.Context, cartID string, productID int64, qty int) error
	UpdateQuantity(ctx context.Context, cartID string, productID int64, qty int) error
	RemoveProduct(ctx context.Context, cartID string, productID int64) error
}

type httpBackend struct {
	api *apiclient.Client
}

func NewHTTPBackend(api *apiclient.Client) Backend {
	return &httpBackend{api: api}
}

func (b *httpBackend) GetCart(ctx context.Context, owner Owner) ([]Line, error) {
	var payload apiclient.Fields
	path := fmt.Sprintf("/public/users/%s/carts/%s", url.PathEscape(owner.Email), url.PathEscape(owner.CartID))
	if err := b.api.Do(ctx, http.MethodGet, path, nil, &payload, nil); err != nil {
		return nil, err
	}
	return MapServerItems(payload), nil
}

func (b *httpBackend) CartIDByEmail(ctx context.Context, email string) (string, error) {
	var payload apiclient.Fields
	path := fmt.Sprintf("/public/users/%s/carts", url.PathEscape(email))
	if err := b.api.Do(ctx, http.MethodGet, path, nil, &payload, nil); err != nil {
		return "", err
	}
	id := payload.String("cartId", "id", "cart.cartId", "cart.id")
	if id == "" {
		return "", ErrCartNotFound
	}
	return id, nil
}

func (b *httpBackend) AddProduct(ctx context.Context, cartID string, productID int64, qty int) error {
	path := fmt.Sprintf("/public/carts/%s/products/%d/quantity/%d", url.PathEscape(cartID), productID, qty)
	return b.api.Do(ctx, http.MethodPost, path, nil, nil, nil)
}

func (b *httpBackend) UpdateQuantity(ctx context.Context, cartID string, productID int64, qty int) error {
	path := fmt.Sprintf("/public/carts/%s/products/%d/quantity/%d", url.PathEscape(cartID), productID, qty)
	return b.api.Do(ctx, http.MethodPut, path, nil, nil, nil)
}

func (b *httpBackend) RemoveProduct(ctx context.Context, cartID string, productID int64) error {
	path := fmt.Sprintf("/public/carts/%s/product/%d", url.PathEscape(cartID), productID)
	return b.api.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}
