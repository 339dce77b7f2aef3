// Package notify mails the shopper once an order is placed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"checkout-core/internal/logger"
	"checkout-core/internal/order"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Notifier is told about every completed order.
type Notifier interface {
	OrderPlaced(ctx context.Context, to string, o *order.Order) error
}

var (
	ErrMissingAPIKey    = errors.New("sendgrid api key is empty")
	ErrMissingSender    = errors.New("from address is empty")
	ErrMissingRecipient = errors.New("to address is empty")
)

type SendGridMailer struct {
	apiKey string
	from   string
	host   string
}

// NewSendGridMailer builds a mailer. host is empty in production; tests
// point it at a local server.
func NewSendGridMailer(apiKey, from, host string) *SendGridMailer {
	return &SendGridMailer{apiKey: apiKey, from: from, host: host}
}

func (m *SendGridMailer) OrderPlaced(ctx context.Context, to string, o *order.Order) error {
	if m.apiKey == "" {
		return ErrMissingAPIKey
	}
	if m.from == "" {
		return ErrMissingSender
	}
	if to == "" {
		return ErrMissingRecipient
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "notify"),
		zap.String("order_id", o.OrderID),
	)

	subject := "Your order is confirmed"
	if o.OrderID != "" {
		subject = fmt.Sprintf("Order %s confirmed", o.OrderID)
	}
	body := renderOrder(o)

	message := mail.NewSingleEmail(
		mail.NewEmail("Checkout", m.from),
		subject,
		mail.NewEmail(o.Address.FullName, to),
		body,
		fmt.Sprintf("<pre>%s</pre>", body),
	)

	request := sendgrid.GetRequest(m.apiKey, "/v3/mail/send", m.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequest(request)
	if err != nil {
		log.Error("sendgrid send error", zap.Error(err))
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		log.Error("sendgrid rejected mail",
			zap.Int("status", response.StatusCode),
			zap.String("response", response.Body),
		)
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}

	log.Info("order mail sent", zap.Int("status", response.StatusCode))
	return nil
}

func renderOrder(o *order.Order) string {
	var b strings.Builder
	if o.OrderID != "" {
		fmt.Fprintf(&b, "Order: %s\n", o.OrderID)
	}
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%d x %s @ %d\n", it.Quantity, it.Name, it.Price)
	}
	fmt.Fprintf(&b, "Subtotal: %d\nShipping: %d\nTotal: %d\n", o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Total)
	if addr := o.Address.String(); addr != "" {
		fmt.Fprintf(&b, "Ship to: %s\n", addr)
	}
	return b.String()
}
