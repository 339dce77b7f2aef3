package shipping

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"checkout-core/internal/apiclient"
	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

const defaultQuoteTimeout = 3 * time.Second

// Calculator quotes shipping fees. Quote never fails: any problem with the
// rate service yields the fallback quote.
type Calculator interface {
	Quote(ctx context.Context, opt Option, subtotal int64) Quote
}

type calculator struct {
	api     *apiclient.Client
	timeout time.Duration
}

// NewCalculator builds a calculator over the rate service. A nil client
// means no live endpoint; every quote is the fallback.
func NewCalculator(api *apiclient.Client, timeout time.Duration) Calculator {
	if timeout <= 0 {
		timeout = defaultQuoteTimeout
	}
	return &calculator{api: api, timeout: timeout}
}

func (c *calculator) Quote(ctx context.Context, opt Option, subtotal int64) Quote {
	opt = ParseOption(string(opt))
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "shipping"),
		zap.String("option", string(opt)),
		zap.Int64("subtotal", subtotal),
	)

	if c.api == nil || c.api.BaseURL() == "" {
		return Fallback(opt)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("option", string(opt))
	q.Set("subtotal", strconv.FormatInt(subtotal, 10))

	var raw apiclient.Fields
	if err := c.api.Do(ctx, http.MethodGet, "/public/shipping/fee?"+q.Encode(), nil, &raw, nil); err != nil {
		log.Warn("shipping quote failed, using fallback", zap.Error(err))
		return Fallback(opt)
	}

	fee, ok := raw.Int("fee", "shippingFee", "amount")
	if !ok || fee < 0 {
		log.Warn("shipping quote missing fee, using fallback")
		return Fallback(opt)
	}

	eta := raw.String("eta", "etaLabel")
	if eta == "" {
		eta = fallbackTable[opt].ETALabel
	}

	return Quote{Option: opt, Fee: fee, ETALabel: eta}
}
