package shipping

// Option is the shipping speed chosen at checkout.
type Option string

const (
	OptionStandard Option = "standard"
	OptionExpress  Option = "express"
)

// ParseOption maps free text to an Option. Anything unrecognised is standard.
func ParseOption(s string) Option {
	if Option(s) == OptionExpress {
		return OptionExpress
	}
	return OptionStandard
}

// Quote is a fee and ETA for one option. Degraded quotes come from the
// fallback table rather than the rate service.
type Quote struct {
	Option   Option `json:"option"`
	Fee      int64  `json:"fee"`
	ETALabel string `json:"etaLabel"`
	Degraded bool   `json:"degraded"`
}

var fallbackTable = map[Option]Quote{
	OptionStandard: {Option: OptionStandard, Fee: 0, ETALabel: "5–7 days"},
	OptionExpress:  {Option: OptionExpress, Fee: 12000, ETALabel: "1–2 days"},
}

// Fallback returns the fixed quote used when the rate service is unavailable.
func Fallback(opt Option) Quote {
	q := fallbackTable[ParseOption(string(opt))]
	q.Degraded = true
	return q
}
