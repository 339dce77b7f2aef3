package returnurl

import (
	"net/url"
	"strings"
	"sync"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// Deep-link schemes the embedded browser must never follow.
var blockedSchemes = []string{"appios://", "exp://"}

// Interceptor watches one checkout attempt. It publishes at most one
// Outcome; browser engines emit duplicate navigation events and every
// publish after the first is dropped.
type Interceptor struct {
	closePrefix string
	secret      string
	intentID    string

	once sync.Once
	out  chan Outcome
	done chan struct{}
}

func NewInterceptor(closePrefix, secret, intentID string) *Interceptor {
	return &Interceptor{
		closePrefix: closePrefix,
		secret:      secret,
		intentID:    intentID,
		out:         make(chan Outcome, 1),
		done:        make(chan struct{}),
	}
}

func (i *Interceptor) IntentID() string { return i.intentID }

// Outcomes yields the single outcome of the attempt.
func (i *Interceptor) Outcomes() <-chan Outcome { return i.out }

// Done is closed once an outcome was published.
func (i *Interceptor) Done() <-chan struct{} { return i.done }

// Publish hands o to the consumer. It reports false when an outcome was
// already published for this attempt.
func (i *Interceptor) Publish(o Outcome) bool {
	published := false
	i.once.Do(func() {
		if o.IntentID == "" {
			o.IntentID = i.intentID
		}
		i.out <- o
		close(i.done)
		published = true
	})
	if !published {
		logger.L().Debug("duplicate return outcome dropped",
			zap.String("intent_id", i.intentID),
			zap.String("rcode", o.RCode),
		)
	}
	return published
}

// ShouldStartLoad is the embedded browser navigation guard. It returns
// false for deep links and for the close URL, which is never loaded.
func (i *Interceptor) ShouldStartLoad(raw string) bool {
	for _, s := range blockedSchemes {
		if strings.HasPrefix(raw, s) {
			return false
		}
	}
	o, ok := parseCloseURL(raw, i.closePrefix, i.secret, i.intentID)
	if !ok {
		return true
	}
	i.Publish(o)
	return false
}

// FromPageURL handles a full-page redirect: the outcome is read from the
// page URL query at load. It reports whether the URL carried one.
func (i *Interceptor) FromPageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	q := u.Query()
	if !HasOutcome(q) {
		return false
	}
	i.Publish(FromQuery(q, i.secret, i.intentID))
	return true
}

// Close reports that the user dismissed the payment window.
func (i *Interceptor) Close() bool {
	return i.Publish(Outcome{IntentID: i.intentID, Cancelled: true})
}
