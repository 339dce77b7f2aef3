// Package returnurl detects the payment provider's redirect back into the
// app and turns it into a single Outcome per checkout attempt.
package returnurl

import (
	"net/url"
	"strings"

	"checkout-core/internal/payment"
)

// Outcome is what the provider reported on return. Signed is true only when
// the query carried a valid provider signature. Cancelled means the user
// closed the payment window without the provider redirecting.
type Outcome struct {
	RCode     string `json:"rcode"`
	IntentID  string `json:"intentId"`
	Signed    bool   `json:"signed"`
	Cancelled bool   `json:"cancelled"`
}

// Kind classifies the outcome. A user close is always a cancellation.
func (o Outcome) Kind() payment.Kind {
	if o.Cancelled {
		return payment.KindCancelled
	}
	return payment.ClassifyRCode(o.RCode)
}

var (
	rcodeParams  = []string{"rcode", "vnp_ResponseCode", "resultCode"}
	intentParams = []string{"orderId", "intentId", "vnp_TxnRef"}
)

func first(q url.Values, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

// FromQuery reads an outcome from return URL parameters. When secret is set
// the signature is checked and recorded in Signed.
func FromQuery(q url.Values, secret, fallbackIntentID string) Outcome {
	o := Outcome{
		RCode:    first(q, rcodeParams),
		IntentID: first(q, intentParams),
	}
	if o.IntentID == "" {
		o.IntentID = fallbackIntentID
	}
	if secret != "" {
		o.Signed = payment.VerifyReturn(q, secret) == nil
	}
	return o
}

// ParseCloseURL extracts the outcome from raw when it starts with
// closePrefix. The intent id falls back to fallbackIntentID when the
// provider omits it.
func ParseCloseURL(raw, closePrefix, fallbackIntentID string) (Outcome, bool) {
	return parseCloseURL(raw, closePrefix, "", fallbackIntentID)
}

func parseCloseURL(raw, closePrefix, secret, fallbackIntentID string) (Outcome, bool) {
	if closePrefix == "" || !strings.HasPrefix(raw, closePrefix) {
		return Outcome{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Outcome{IntentID: fallbackIntentID}, true
	}
	return FromQuery(u.Query(), secret, fallbackIntentID), true
}

// HasOutcome reports whether a page URL carries return parameters.
func HasOutcome(q url.Values) bool {
	return first(q, rcodeParams) != "" || first(q, intentParams) != ""
}
