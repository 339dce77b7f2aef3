package address

import "checkout-core/internal/apiclient"

// FromBookEntry maps an address-book payload. Backends disagree on field
// names, so each field has fallbacks.
func FromBookEntry(raw apiclient.Fields) Address {
	a := Address{
		Line1:      raw.String("street", "line1", "addressLine1", "detail"),
		City:       raw.String("city"),
		State:      raw.String("state", "province", "district"),
		Country:    raw.String("country"),
		PostalCode: raw.String("zipCode", "postalCode", "pincode"),
		Phone:      raw.String("phone", "mobile"),
		FullName:   raw.String("fullName", "receiverName", "name"),
	}
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

// Picked is an address chosen on the address screen. It carries no contact
// details, so those are kept from the current address.
type Picked struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Pincode string `json:"pincode"`
}

func FromPicked(p Picked, current *Address) Address {
	a := Address{
		Line1:      p.Street,
		City:       p.City,
		State:      p.State,
		Country:    p.Country,
		PostalCode: p.Pincode,
	}
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	if current != nil {
		a.Phone = current.Phone
		a.FullName = current.FullName
	}
	return a
}
