package address

import "strings"

// Address is the flat shipping snapshot copied into an order at finalize
// time. It is a value: editing the address book afterwards never changes an
// order that already holds a copy.
type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
	FullName   string `json:"fullName"`
}

const DefaultCountry = "VN"

// IsZero reports whether no field carries any text.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1+a.City+a.State+a.PostalCode+a.Phone+a.FullName) == "" &&
		(a.Country == "" || a.Country == DefaultCountry)
}

// Validate checks the minimum needed to ship.
func (a Address) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return ErrMissingLine1
	}
	if strings.TrimSpace(a.City) == "" {
		return ErrMissingCity
	}
	return nil
}

// String renders the one-line form shown on the checkout screen.
func (a Address) String() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Line1, a.City, a.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	tail := strings.TrimSpace(a.Country + " " + a.PostalCode)
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
