package apiclient

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFields(t *testing.T, raw string) Fields {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var f Fields
	require.NoError(t, dec.Decode(&f))
	return f
}

func TestFields(t *testing.T) {
	f := decodeFields(t, `{
		"id": 12,
		"name": "",
		"productName": "Shirt",
		"price": "150000 ₫",
		"unitPrice": 99.6,
		"product": {"id": 3, "imageUrl": "a.png"},
		"items": [{"id": 1}, "skip", {"id": 2}]
	}`)

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "Shirt", f.String("name", "productName"))
		assert.Equal(t, "12", f.String("missing", "id"))
		assert.Equal(t, "a.png", f.String("product.imageUrl"))
		assert.Equal(t, "", f.String("missing"))
	})

	t.Run("Decimal", func(t *testing.T) {
		d, ok := f.Decimal("price")
		require.True(t, ok)
		assert.Equal(t, "150000", d.String())

		d, ok = f.Decimal("missing", "unitPrice")
		require.True(t, ok)
		assert.Equal(t, "99.6", d.String())

		_, ok = f.Decimal("name")
		assert.False(t, ok)
	})

	t.Run("Int", func(t *testing.T) {
		n, ok := f.Int("unitPrice")
		require.True(t, ok)
		assert.Equal(t, int64(100), n)

		n, ok = f.Int("product.id")
		require.True(t, ok)
		assert.Equal(t, int64(3), n)
	})

	t.Run("ObjectAndList", func(t *testing.T) {
		assert.Equal(t, "a.png", f.Object("product").String("imageUrl"))
		assert.Nil(t, f.Object("missing"))

		items := f.List("products", "items")
		require.Len(t, items, 2)
		assert.Equal(t, "2", items[1].String("id"))
	})
}
