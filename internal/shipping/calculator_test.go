package shipping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-core/internal/apiclient"

	"github.com/stretchr/testify/assert"
)

func TestFallback(t *testing.T) {
	assert.Equal(t, Quote{Option: OptionStandard, Fee: 0, ETALabel: "5–7 days", Degraded: true}, Fallback(OptionStandard))
	assert.Equal(t, Quote{Option: OptionExpress, Fee: 12000, ETALabel: "1–2 days", Degraded: true}, Fallback(OptionExpress))
	assert.Equal(t, OptionStandard, Fallback("overnight").Option)
}

func TestCalculator_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/public/shipping/fee", r.URL.Path)
			assert.Equal(t, "express", r.URL.Query().Get("option"))
			assert.Equal(t, "300000", r.URL.Query().Get("subtotal"))
			_, _ = w.Write([]byte(`{"fee": 15000, "eta": "next day"}`))
		}))
		defer srv.Close()

		calc := NewCalculator(apiclient.New(srv.URL, time.Second), time.Second)
		q := calc.Quote(ctx, OptionExpress, 300000)

		assert.Equal(t, Quote{Option: OptionExpress, Fee: 15000, ETALabel: "next day"}, q)
	})

	t.Run("ServerError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		q := NewCalculator(apiclient.New(srv.URL, time.Second), time.Second).Quote(ctx, OptionExpress, 1)
		assert.Equal(t, Fallback(OptionExpress), q)
	})

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		q := NewCalculator(apiclient.New(srv.URL, time.Second), 20*time.Millisecond).Quote(ctx, OptionStandard, 1)
		assert.True(t, q.Degraded)
		assert.Equal(t, int64(0), q.Fee)
	})

	t.Run("MissingFee", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"eta": "soon"}`))
		}))
		defer srv.Close()

		q := NewCalculator(apiclient.New(srv.URL, time.Second), time.Second).Quote(ctx, OptionStandard, 1)
		assert.True(t, q.Degraded)
	})

	t.Run("NoEndpoint", func(t *testing.T) {
		q := NewCalculator(nil, 0).Quote(ctx, OptionExpress, 1)
		assert.Equal(t, Fallback(OptionExpress), q)
	})
}
