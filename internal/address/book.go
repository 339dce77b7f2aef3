package address

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"checkout-core/internal/apiclient"
	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// Book reads saved addresses from the commerce backend.
type Book interface {
	Get(ctx context.Context, id string) (*Address, error)
}

type httpBook struct {
	api *apiclient.Client
}

func NewHTTPBook(api *apiclient.Client) Book {
	return &httpBook{api: api}
}

func (b *httpBook) Get(ctx context.Context, id string) (*Address, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "address"),
		zap.String("method", "Get"),
		zap.String("address_id", id),
	)

	var raw apiclient.Fields
	err := b.api.Do(ctx, http.MethodGet, "/admin/addresses/"+url.PathEscape(id), nil, &raw, nil)
	if err != nil {
		if apiclient.StatusCode(err) == http.StatusNotFound {
			return nil, ErrAddressNotFound
		}
		log.Warn("failed to load address", zap.Error(err))
		return nil, fmt.Errorf("load address %s: %w", id, err)
	}

	a := FromBookEntry(raw)
	return &a, nil
}
