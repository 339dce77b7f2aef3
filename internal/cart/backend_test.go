package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-core/internal/apiclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend(t *testing.T) {
	ctx := context.Background()

	var lastMethod, lastPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastMethod, lastPath = r.Method, r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/public/users/a@b.c/carts/7":
			_, _ = w.Write([]byte(`{"items":[{"id":1,"productId":3,"productName":"Cup","price":20000,"quantity":2}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/public/users/a@b.c/carts":
			_, _ = w.Write([]byte(`{"cartId":7}`))
		case r.Method == http.MethodGet && r.URL.Path == "/public/users/none@b.c/carts":
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/public/carts/7/product/404":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	backend := NewHTTPBackend(apiclient.New(srv.URL, time.Second))

	t.Run("GetCart", func(t *testing.T) {
		lines, err := backend.GetCart(ctx, Owner{Email: "a@b.c", CartID: "7"})
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, int64(3), lines[0].ProductID)
		assert.Equal(t, 2, lines[0].Quantity)
	})

	t.Run("CartIDByEmail", func(t *testing.T) {
		id, err := backend.CartIDByEmail(ctx, "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, "7", id)

		_, err = backend.CartIDByEmail(ctx, "none@b.c")
		assert.ErrorIs(t, err, ErrCartNotFound)
	})

	t.Run("Mutations", func(t *testing.T) {
		require.NoError(t, backend.AddProduct(ctx, "7", 3, 2))
		assert.Equal(t, "POST", lastMethod)
		assert.Equal(t, "/public/carts/7/products/3/quantity/2", lastPath)

		require.NoError(t, backend.UpdateQuantity(ctx, "7", 3, 5))
		assert.Equal(t, "PUT", lastMethod)
		assert.Equal(t, "/public/carts/7/products/3/quantity/5", lastPath)

		require.NoError(t, backend.RemoveProduct(ctx, "7", 3))
		assert.Equal(t, "DELETE", lastMethod)
		assert.Equal(t, "/public/carts/7/product/3", lastPath)
	})

	t.Run("RemoveError", func(t *testing.T) {
		err := backend.RemoveProduct(ctx, "7", 404)
		assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
	})
}
