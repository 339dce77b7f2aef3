package payment

import "strings"

// Status is the gateway-side state of an intent.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// ParseStatus maps the provider's wording onto the three intent states.
// Unknown values are PENDING so they never end an attempt on their own.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PAID", "SUCCESS", "SUCCEEDED", "COMPLETED", "SETTLED":
		return StatusPaid
	case "FAILED", "FAILURE", "EXPIRED", "CANCELLED", "CANCELED", "DECLINED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// CanAdvanceTo reports whether next is a legal successor. Only
// PENDING→PAID and PENDING→FAILED move; terminal states never revert.
func (s Status) CanAdvanceTo(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusPending && next.IsTerminal()
}

// Intent is a reservation of Amount at the gateway. Amount never changes
// after creation.
type Intent struct {
	IntentID    string `json:"intentId"`
	Amount      int64  `json:"amount"`
	Status      Status `json:"status"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type Item struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type CreateIntentRequest struct {
	Email     string `json:"email"`
	CartID    string `json:"cartId"`
	Amount    int64  `json:"amount"`
	Items     []Item `json:"items"`
	ReturnURL string `json:"returnUrl"`
}

type IntentResponse struct {
	IntentID    string `json:"intentId"`
	RedirectURL string `json:"redirectUrl"`
}

type StatusResponse struct {
	IntentID string `json:"intentId"`
	Status   Status `json:"status"`
	Amount   int64  `json:"amount"`
}
