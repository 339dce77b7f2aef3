package payment

// Kind classifies the outcome code the provider appends to the close URL.
type Kind int

const (
	KindUnknown Kind = iota
	KindSuccess
	KindCancelled
	KindFailed
)

const (
	RCodeSuccess   = "00"
	RCodeCancelled = "24"
	RCodeFailed    = "FAILED"
)

var rcodeTable = map[string]struct {
	kind    Kind
	message string
}{
	RCodeSuccess:   {KindSuccess, "transaction successful"},
	"07":           {KindUnknown, "amount deducted, transaction under review"},
	RCodeCancelled: {KindCancelled, "customer cancelled the transaction"},
	"09":           {KindFailed, "card or account not registered for internet banking"},
	"10":           {KindFailed, "card or account verification failed too many times"},
	"11":           {KindFailed, "payment window expired"},
	"12":           {KindFailed, "card or account locked"},
	"13":           {KindFailed, "wrong one-time password"},
	"51":           {KindFailed, "insufficient balance"},
	"65":           {KindFailed, "daily transaction limit exceeded"},
	"75":           {KindFailed, "issuing bank under maintenance"},
	"79":           {KindFailed, "wrong payment password too many times"},
	RCodeFailed:    {KindFailed, "payment failed"},
	"99":           {KindFailed, "unspecified error"},
}

// ClassifyRCode maps an outcome code to its kind. Success is only a hint:
// payment success is concluded from the status endpoint alone.
func ClassifyRCode(rcode string) Kind {
	if e, ok := rcodeTable[rcode]; ok {
		return e.kind
	}
	return KindUnknown
}

// DescribeRCode returns a human-readable reason for rcode.
func DescribeRCode(rcode string) string {
	if e, ok := rcodeTable[rcode]; ok {
		return e.message
	}
	if rcode == "" {
		return "no outcome code"
	}
	return "unrecognised outcome code " + rcode
}
