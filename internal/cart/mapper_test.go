package cart

import (
	"encoding/json"
	"strings"
	"testing"

	"checkout-core/internal/apiclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) apiclient.Fields {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var f apiclient.Fields
	require.NoError(t, dec.Decode(&f))
	return f
}

func TestMapServerItems(t *testing.T) {
	t.Run("FlatItems", func(t *testing.T) {
		payload := decode(t, `{"items": [
			{"cartItemId": 11, "productId": 1, "productName": "Shirt", "price": 150000, "quantity": 2, "imageUrl": "s.png", "color": "Red", "size": "M"}
		]}`)

		lines := MapServerItems(payload)

		require.Len(t, lines, 1)
		l := lines[0]
		assert.Equal(t, int64(1), l.ProductID)
		assert.Equal(t, "Shirt", l.Name)
		assert.Equal(t, int64(150000), l.Price)
		assert.Equal(t, 2, l.Quantity)
		assert.Equal(t, "s.png", l.Image)
		assert.Equal(t, "11", l.ServerLineID)
		assert.Equal(t, "Red", *l.Color)
		assert.Equal(t, "M", *l.Size)
	})

	t.Run("NestedProductAndFallbacks", func(t *testing.T) {
		payload := decode(t, `{"products": [
			{"id": 5, "product": {"id": 3, "name": "Hat", "specialPrice": "99.5"}}
		]}`)

		lines := MapServerItems(payload)

		require.Len(t, lines, 1)
		l := lines[0]
		assert.Equal(t, int64(3), l.ProductID)
		assert.Equal(t, "Hat", l.Name)
		assert.Equal(t, int64(100), l.Price)
		assert.Equal(t, 1, l.Quantity)
		assert.Equal(t, placeholderImage, l.Image)
		assert.Equal(t, "5", l.ServerLineID)
		assert.Nil(t, l.Color)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, MapServerItems(decode(t, `{}`)))
	})
}
