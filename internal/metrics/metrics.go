// Package metrics keeps in-process counters for checkout attempts.
package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Checkout counts attempts by how they ended. A nil *Checkout records
// nothing.
type Checkout struct {
	Started        Counter
	Paid           Counter
	Failed         Counter
	Unconfirmed    Counter
	Cancelled      Counter
	FinalizeFailed Counter
	StatusPolls    Counter
	CashOrders     Counter

	// total time spent from the return outcome to the conclusion
	concludeNanos Counter
	concluded     Counter
}

func NewCheckout() *Checkout { return &Checkout{} }

func (c *Checkout) AttemptStarted() {
	if c != nil {
		c.Started.Inc()
	}
}

// Concluded records an attempt outcome ("PAID", "FAILED", "UNCONFIRMED",
// "CANCELLED") with the polls it took and how long it ran.
func (c *Checkout) Concluded(outcome string, polls int, took time.Duration) {
	if c == nil {
		return
	}
	switch outcome {
	case "PAID":
		c.Paid.Inc()
	case "FAILED":
		c.Failed.Inc()
	case "UNCONFIRMED":
		c.Unconfirmed.Inc()
	case "CANCELLED":
		c.Cancelled.Inc()
	}
	if polls > 0 {
		c.StatusPolls.Add(uint64(polls))
	}
	if took > 0 {
		c.concludeNanos.Add(uint64(took))
	}
	c.concluded.Inc()
}

func (c *Checkout) CashOrderPlaced() {
	if c != nil {
		c.CashOrders.Inc()
	}
}

func (c *Checkout) FinalizeFailure() {
	if c != nil {
		c.FinalizeFailed.Inc()
	}
}

// Snapshot is a point-in-time copy for the /metrics endpoint.
type Snapshot struct {
	Started          uint64  `json:"attemptsStarted"`
	Paid             uint64  `json:"paid"`
	Failed           uint64  `json:"failed"`
	Unconfirmed      uint64  `json:"unconfirmed"`
	Cancelled        uint64  `json:"cancelled"`
	FinalizeFailed   uint64  `json:"finalizeFailed"`
	StatusPolls      uint64  `json:"statusPolls"`
	CashOrders       uint64  `json:"cashOrders"`
	AvgConcludeMilli float64 `json:"avgConcludeMs"`
}

func (c *Checkout) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Started:        c.Started.Load(),
		Paid:           c.Paid.Load(),
		Failed:         c.Failed.Load(),
		Unconfirmed:    c.Unconfirmed.Load(),
		Cancelled:      c.Cancelled.Load(),
		FinalizeFailed: c.FinalizeFailed.Load(),
		StatusPolls:    c.StatusPolls.Load(),
		CashOrders:     c.CashOrders.Load(),
	}
	if n := c.concluded.Load(); n > 0 {
		s.AvgConcludeMilli = float64(c.concludeNanos.Load()) / float64(n) / float64(time.Millisecond)
	}
	return s
}
