package cart

import (
	"fmt"
	"net/url"
)

// Key identifies a line: the server line id when known, else the variant key.
type Key string

// Line is one cart row. Color and Size are optional variant attributes; an
// empty string and nil are the same variant.
type Line struct {
	ProductID    int64   `json:"productId"`
	Name         string  `json:"name"`
	Price        int64   `json:"price"`
	Image        string  `json:"image"`
	Color        *string `json:"color,omitempty"`
	Size         *string `json:"size,omitempty"`
	Quantity     int     `json:"quantity"`
	ServerLineID string  `json:"serverLineId,omitempty"`
}

func (l Line) Key() Key {
	if l.ServerLineID != "" {
		return ServerKey(l.ServerLineID)
	}
	return l.VariantKey()
}

// VariantKey is (productId, color, size) regardless of any server line id.
func (l Line) VariantKey() Key {
	return VariantKey(l.ProductID, deref(l.Color), deref(l.Size))
}

func (l Line) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

func ServerKey(serverLineID string) Key {
	return Key("line:" + serverLineID)
}

func VariantKey(productID int64, color, size string) Key {
	return Key(fmt.Sprintf("variant:%d:%s:%s", productID, url.QueryEscape(color), url.QueryEscape(size)))
}

// State is the cart value owned by a Store. Values handed out by the store
// never alias its internal slice.
type State struct {
	Lines []Line `json:"lines"`
}

func (s State) Total() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.Subtotal()
	}
	return total
}

func (s State) Len() int { return len(s.Lines) }

func (s State) IsEmpty() bool { return len(s.Lines) == 0 }

// Find returns the line with key k.
func (s State) Find(k Key) (Line, bool) {
	if i := s.index(k); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

func (s State) index(k Key) int {
	for i, l := range s.Lines {
		if l.Key() == k {
			return i
		}
	}
	return -1
}

func (s State) clone() State {
	if s.Lines == nil {
		return State{}
	}
	lines := make([]Line, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = l.clone()
	}
	return State{Lines: lines}
}

func (l Line) clone() Line {
	out := l
	if l.Color != nil {
		c := *l.Color
		out.Color = &c
	}
	if l.Size != nil {
		s := *l.Size
		out.Size = &s
	}
	return out
}

// Owner is the backend identity of a cart.
type Owner struct {
	Email  string
	CartID string
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
