package cart

import (
	"checkout-core/internal/apiclient"
)

const placeholderImage = "https://via.placeholder.com/100"

// MapServerItems converts a cart payload ({items|products: [...]}) into lines.
// Field names vary across backend versions, so every field has fallbacks.
func MapServerItems(payload apiclient.Fields) []Line {
	raw := payload.List("items", "products", "cartItems")
	lines := make([]Line, 0, len(raw))
	for _, x := range raw {
		lines = append(lines, MapServerItem(x))
	}
	return lines
}

func MapServerItem(x apiclient.Fields) Line {
	productID, _ := x.Int("productId", "product.id", "product.productId", "id")
	price, _ := x.Int("price", "unitPrice", "specialPrice", "product.specialPrice", "product.price")
	qty, ok := x.Int("quantity")
	if !ok {
		qty = 1
	}

	image := x.String("imageUrl", "image", "product.imageUrl", "product.image")
	if image == "" {
		image = placeholderImage
	}

	line := Line{
		ProductID:    productID,
		Name:         x.String("productName", "product.productName", "product.name", "name"),
		Price:        price,
		Image:        image,
		Quantity:     int(qty),
		ServerLineID: x.String("cartItemId", "id"),
	}
	if c := x.String("color", "variantColor"); c != "" {
		line.Color = &c
	}
	if s := x.String("size", "variantSize"); s != "" {
		line.Size = &s
	}
	return line
}
