package order

import (
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/apiclient"
)

// MapOrder reads an order payload. The backend may wrap it in "order" or
// "data" and names fields inconsistently.
func MapOrder(raw apiclient.Fields) *Order {
	if inner := raw.Object("order", "data"); inner != nil {
		raw = inner
	}

	o := &Order{
		OrderID:       raw.String("orderId", "id", "_id"),
		Status:        OrderStatus(raw.String("status", "orderStatus")),
		PaymentStatus: PaymentStatus(raw.String("paymentStatus", "payment.status")),
		IntentID:      raw.String("intentId", "paymentIntentId"),
	}

	if addr := raw.Object("shippingAddress", "address"); addr != nil {
		o.Address = address.FromBookEntry(addr)
	}

	totals := raw.Object("totals")
	if totals == nil {
		totals = raw
	}
	o.Totals.Subtotal, _ = totals.Int("subtotal", "subTotal")
	o.Totals.Shipping, _ = totals.Int("shipping", "shippingFee")
	o.Totals.Total, _ = totals.Int("total", "grandTotal", "totalPrice", "totalAmount")

	for _, it := range raw.List("items", "products", "orderItems") {
		o.Items = append(o.Items, mapItem(it))
	}

	if ts := raw.String("createdAt", "created_at", "orderDate"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			o.CreatedAt = t
		}
	}
	return o
}

func mapItem(raw apiclient.Fields) Item {
	it := Item{
		Name:  raw.String("name", "productName", "product.name"),
		Image: raw.String("image", "imageUrl", "product.image"),
	}
	it.ProductID, _ = raw.Int("productId", "product.id", "id")
	it.Price, _ = raw.Int("price", "unitPrice", "product.price")
	q, _ := raw.Int("quantity", "qty")
	it.Quantity = int(q)
	if c := raw.String("color"); c != "" {
		it.Color = &c
	}
	if s := raw.String("size"); s != "" {
		it.Size = &s
	}
	return it
}

// MapOrders reads a list payload, either a bare array under "orders" or
// "data", or an object whose "items" hold the orders.
func MapOrders(raw apiclient.Fields) []*Order {
	list := raw.List("orders", "data", "items")
	out := make([]*Order, 0, len(list))
	for _, o := range list {
		out = append(out, MapOrder(o))
	}
	return out
}

// fillFromRequest completes o with what the client sent when the response
// omitted it.
func fillFromRequest(o *Order, req FinalizeRequest) {
	if o.IntentID == "" {
		o.IntentID = req.IntentID
	}
	if o.Address.IsZero() {
		o.Address = req.Address
	}
	if o.Totals.Total == 0 {
		o.Totals = req.Totals
	}
	if len(o.Items) == 0 {
		o.Items = append([]Item(nil), req.Items...)
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentStatusPaid
	}
}
