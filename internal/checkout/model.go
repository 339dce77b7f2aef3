package checkout

import (
	"strings"
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/cart"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/returnurl"
	"checkout-core/internal/shipping"
)

// PaymentMethod is how the shopper pays: through the gateway, or in cash
// when the order is delivered.
type PaymentMethod string

const (
	MethodGateway PaymentMethod = "vnpay"
	MethodCash    PaymentMethod = "CASH"
)

// cashIntentPrefix marks the synthetic intent key of a cash order. Cash
// orders never reach the gateway.
const cashIntentPrefix = "cod-"

// ParsePaymentMethod defaults to the gateway.
func ParsePaymentMethod(s string) PaymentMethod {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASH", "COD":
		return MethodCash
	default:
		return MethodGateway
	}
}

func isCashIntent(intentID string) bool {
	return strings.HasPrefix(intentID, cashIntentPrefix)
}

// Input is what the shopper chose on the checkout screen.
type Input struct {
	Address *address.Address
	Option  shipping.Option
	Method  PaymentMethod
}

// Summary is the priced checkout shown before payment.
type Summary struct {
	Address address.Address `json:"address"`
	Quote   shipping.Quote  `json:"quote"`
	Totals  order.Totals    `json:"totals"`
	Lines   []cart.Line     `json:"lines"`
	Method  PaymentMethod   `json:"paymentMethod"`
}

// Attempt is one trip through the payment gateway. Snapshot is the cart as
// it was when the intent was created; later cart edits never reach it.
type Attempt struct {
	ID          string          `json:"id"`
	IntentID    string          `json:"intentId"`
	RedirectURL string          `json:"redirectUrl"`
	Amount      int64           `json:"amount"`
	Email       string          `json:"email"`
	CartID      string          `json:"cartId"`
	Snapshot    cart.State      `json:"snapshot"`
	Address     address.Address `json:"address"`
	Option      shipping.Option `json:"option"`
	Totals      order.Totals    `json:"totals"`
	CreatedAt   time.Time       `json:"createdAt"`

	interceptor *returnurl.Interceptor
}

// Interceptor is the return-URL watcher of this attempt. Hosts feed it
// browser navigations or page loads.
func (a *Attempt) Interceptor() *returnurl.Interceptor { return a.interceptor }

func (a *Attempt) items() []order.Item {
	items := make([]order.Item, 0, len(a.Snapshot.Lines))
	for _, l := range a.Snapshot.Lines {
		items = append(items, order.Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Image:     l.Image,
			Color:     l.Color,
			Size:      l.Size,
		})
	}
	return items
}

func (a *Attempt) paymentItems() []payment.Item {
	items := make([]payment.Item, 0, len(a.Snapshot.Lines))
	for _, l := range a.Snapshot.Lines {
		items = append(items, payment.Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		})
	}
	return items
}

func (a *Attempt) finalizeRequest() order.FinalizeRequest {
	req := order.FinalizeRequest{
		Address:        a.Address,
		ShippingOption: string(a.Option),
		Totals:         a.Totals,
		Items:          a.items(),
		IntentID:       a.IntentID,
	}
	if isCashIntent(a.IntentID) {
		req.PaymentMethod = string(MethodCash)
	}
	return req
}

// Outcome is how an attempt ended from the shopper's point of view.
type Outcome string

const (
	OutcomePaid        Outcome = "PAID"
	OutcomeFailed      Outcome = "FAILED"
	OutcomeUnconfirmed Outcome = "UNCONFIRMED"
	OutcomeCancelled   Outcome = "CANCELLED"
	OutcomePlaced      Outcome = "PLACED" // cash on delivery
)

// placedOutcome is the outcome of an order created for intentID.
func placedOutcome(intentID string) Outcome {
	if isCashIntent(intentID) {
		return OutcomePlaced
	}
	return OutcomePaid
}

// Result is the user-visible conclusion of an attempt.
type Result struct {
	Outcome  Outcome      `json:"outcome"`
	IntentID string       `json:"intentId"`
	RCode    string       `json:"rcode,omitempty"`
	Order    *order.Order `json:"order,omitempty"`
	Message  string       `json:"message"`
}

// Err maps a non-paid outcome to its sentinel error.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeFailed:
		return ErrPaymentFailed
	case OutcomeUnconfirmed:
		return ErrPaymentUnconfirmed
	case OutcomeCancelled:
		return ErrPaymentCancelled
	}
	return nil
}

var messages = map[Outcome]string{
	OutcomePaid:        "Payment successful, your order has been placed.",
	OutcomeFailed:      "Payment failed. Your cart is unchanged, you can try again.",
	OutcomeUnconfirmed: "We are still waiting for the payment confirmation. Please check your orders shortly.",
	OutcomeCancelled:   "Payment cancelled. Your cart is unchanged.",
	OutcomePlaced:      "Your order has been placed. Pay on delivery.",
}
