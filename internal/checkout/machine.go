// Package checkout drives a shopper from a priced cart through the external
// payment gateway to a placed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/logger"
	"checkout-core/internal/metrics"
	"checkout-core/internal/notify"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/poll"
	"checkout-core/internal/returnurl"
	"checkout-core/internal/shipping"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Opener shows the gateway's redirect URL: an embedded browser on native
// hosts, a full navigation on the web.
type Opener interface {
	Open(ctx context.Context, a *Attempt) error
}

type OpenerFunc func(ctx context.Context, a *Attempt) error

func (f OpenerFunc) Open(ctx context.Context, a *Attempt) error { return f(ctx, a) }

// RedirectOpener opens nothing; the client navigates to Attempt.RedirectURL.
var RedirectOpener Opener = OpenerFunc(func(context.Context, *Attempt) error { return nil })

type Deps struct {
	Store       *cart.Store
	Credentials auth.CredentialStore
	Shipping    shipping.Calculator
	Gateway     payment.Gateway
	Finalizer   order.Finalizer
	Journal     Journal
	Opener      Opener
	Notifier    notify.Notifier
	Metrics     *metrics.Checkout
	Clock       poll.Clock
}

type Config struct {
	ReturnURL       string
	CloseURL        string
	GatewaySecret   string
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Machine owns the checkout state of one shopper session. Its mutex is never
// held across a network call.
type Machine struct {
	deps Deps
	cfg  Config

	mu            sync.Mutex
	state         State
	summary       *Summary
	attempt       *Attempt
	starting      bool
	awaiting      bool
	userCancelled bool
	cancelPoll    context.CancelFunc
	last          *Result
}

func NewMachine(deps Deps, cfg Config) *Machine {
	if deps.Journal == nil {
		deps.Journal = NewMemoryJournal()
	}
	if deps.Opener == nil {
		deps.Opener = RedirectOpener
	}
	if deps.Clock == nil {
		deps.Clock = poll.RealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 20
	}
	return &Machine{deps: deps, cfg: cfg, state: StateIdle}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt returns a copy of the attempt in flight.
func (m *Machine) Attempt() (*Attempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt == nil {
		return nil, false
	}
	return copyAttempt(m.attempt), true
}

func (m *Machine) Summary() (*Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return nil, false
	}
	s := *m.summary
	return &s, true
}

// LastResult is the conclusion of the most recent attempt.
func (m *Machine) LastResult() (*Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil, false
	}
	r := *m.last
	return &r, true
}

func copyAttempt(a *Attempt) *Attempt {
	cp := *a
	cp.Snapshot = cart.State{Lines: append([]cart.Line(nil), a.Snapshot.Lines...)}
	return &cp
}

// setState must be called with m.mu held.
func (m *Machine) setState(ctx context.Context, to State) error {
	if err := validateTransition(m.state, to); err != nil {
		logger.FromCtx(ctx).Error("rejected checkout transition", zap.Error(err))
		return err
	}
	logger.FromCtx(ctx).Debug("checkout transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(to)),
	)
	m.state = to
	return nil
}

// busyErr reports why a new attempt cannot begin. Must hold m.mu.
func (m *Machine) busyErr() error {
	if m.state == StateFinalizing {
		return ErrFinalizePending
	}
	if m.starting || m.state.InFlight() {
		return ErrAttemptInProgress
	}
	return nil
}

func (m *Machine) credentials(ctx context.Context) (auth.Credentials, bool) {
	if m.deps.Credentials == nil {
		return auth.Credentials{}, false
	}
	c, err := m.deps.Credentials.Credentials(ctx)
	if err != nil || c.Email == "" || c.CartID == "" {
		return auth.Credentials{}, false
	}
	return c, true
}

// ----------------- Prepare -----------------

// Prepare validates the checkout and prices it. Every missing precondition
// is reported at once, before any network call.
func (m *Machine) Prepare(ctx context.Context, in Input) (*Summary, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "checkout"), zap.String("method", "Prepare"))

	m.mu.Lock()
	if err := m.busyErr(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	snapshot := m.deps.Store.Snapshot()

	var errs []error
	if _, ok := m.credentials(ctx); !ok {
		errs = append(errs, ErrNoCredentials)
	}
	if in.Address == nil {
		errs = append(errs, ErrNoAddress)
	} else if err := in.Address.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrNoAddress, err))
	}
	if snapshot.IsEmpty() {
		errs = append(errs, ErrEmptyCart)
	} else if snapshot.Total() <= 0 {
		errs = append(errs, ErrNonPositiveTotal)
	}
	if len(errs) > 0 {
		log.Info("checkout validation failed", zap.Errors("reasons", errs))
		return nil, &ValidationError{Errs: errs}
	}

	method := in.Method
	if method == "" {
		method = MethodGateway
	}
	subtotal := snapshot.Total()
	quote := m.deps.Shipping.Quote(ctx, in.Option, subtotal)
	sum := &Summary{
		Address: *in.Address,
		Quote:   quote,
		Totals:  totalsOf(subtotal, quote.Fee),
		Lines:   snapshot.Lines,
		Method:  method,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.busyErr(); err != nil {
		return nil, err
	}
	if err := m.setState(ctx, StateAddressReady); err != nil {
		return nil, err
	}
	m.summary = sum

	log.Info("checkout prepared",
		zap.String("option", string(quote.Option)),
		zap.String("payment_method", string(method)),
		zap.Int64("total", sum.Totals.Total),
		zap.Bool("shipping_degraded", quote.Degraded),
	)
	out := *sum
	return &out, nil
}

func totalsOf(subtotal, fee int64) order.Totals {
	total := decimal.NewFromInt(subtotal).Add(decimal.NewFromInt(fee))
	return order.Totals{Subtotal: subtotal, Shipping: fee, Total: total.IntPart()}
}

// ----------------- Start -----------------

// Start freezes the cart, creates the payment intent and opens its redirect.
// Only one attempt runs at a time.
func (m *Machine) Start(ctx context.Context) (*Attempt, error) {
	m.mu.Lock()
	if err := m.busyErr(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.state != StateAddressReady || m.summary == nil {
		m.mu.Unlock()
		return nil, ErrNotPrepared
	}
	if m.summary.Method == MethodCash {
		m.mu.Unlock()
		return nil, ErrMethodMismatch
	}
	m.starting = true
	sum := *m.summary
	m.mu.Unlock()

	a, err := m.createIntent(ctx, sum)

	m.mu.Lock()
	if err != nil {
		m.starting = false
		m.mu.Unlock()
		return nil, err
	}
	ctx = logger.WithAttemptID(ctx, a.ID)
	log := logger.FromCtx(ctx).With(zap.String("layer", "checkout"), zap.String("intent_id", a.IntentID))

	m.attempt = a
	m.last = nil
	if err := m.setState(ctx, StateIntentCreated); err != nil {
		m.starting = false
		m.attempt = nil
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if err := m.deps.Journal.Save(ctx, recordOf(a)); err != nil {
		log.Error("attempt not journaled, it cannot be resumed after a restart", zap.Error(err))
	}

	if err := m.deps.Opener.Open(ctx, copyAttempt(a)); err != nil {
		log.Error("failed to open payment page", zap.Error(err))
		m.mu.Lock()
		_ = m.setState(ctx, StateAddressReady)
		m.attempt = nil
		m.starting = false
		m.mu.Unlock()
		m.markJournal(ctx, a, RecordCancelled, "", err.Error())
		return nil, fmt.Errorf("open payment page: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if err := m.setState(ctx, StateAwaitingGateway); err != nil {
		return nil, err
	}
	m.deps.Metrics.AttemptStarted()
	log.Info("awaiting gateway", zap.Int64("amount", a.Amount))
	return copyAttempt(a), nil
}

// createIntent takes the snapshot that this attempt is bound to and asks
// the gateway for an intent over its total.
func (m *Machine) createIntent(ctx context.Context, sum Summary) (*Attempt, error) {
	a, err := m.newAttempt(ctx, sum)
	if err != nil {
		return nil, err
	}

	res, err := m.deps.Gateway.CreateIntent(ctx, payment.CreateIntentRequest{
		Email:     a.Email,
		CartID:    a.CartID,
		Amount:    a.Amount,
		Items:     a.paymentItems(),
		ReturnURL: m.cfg.ReturnURL,
	})
	if err != nil {
		logger.FromCtx(ctx).Error("create intent failed", zap.String("layer", "checkout"), zap.Error(err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	a.IntentID = res.IntentID
	a.RedirectURL = res.RedirectURL
	a.interceptor = returnurl.NewInterceptor(m.cfg.CloseURL, m.cfg.GatewaySecret, a.IntentID)
	return a, nil
}

// newAttempt freezes the cart and reprices it if it changed since Prepare.
func (m *Machine) newAttempt(ctx context.Context, sum Summary) (*Attempt, error) {
	log := logger.FromCtx(ctx).With(zap.String("layer", "checkout"), zap.String("method", "Start"))

	creds, ok := m.credentials(ctx)
	if !ok {
		return nil, &ValidationError{Errs: []error{ErrNoCredentials}}
	}

	snapshot := m.deps.Store.Snapshot()
	if snapshot.IsEmpty() {
		return nil, &ValidationError{Errs: []error{ErrEmptyCart}}
	}
	subtotal := snapshot.Total()
	if subtotal <= 0 {
		return nil, &ValidationError{Errs: []error{ErrNonPositiveTotal}}
	}

	quote := sum.Quote
	if subtotal != sum.Totals.Subtotal {
		log.Info("cart changed since prepare, requoting shipping")
		quote = m.deps.Shipping.Quote(ctx, quote.Option, subtotal)
	}
	totals := totalsOf(subtotal, quote.Fee)

	amount, err := payment.NormalizeAmount(decimal.NewFromInt(totals.Total))
	if err != nil {
		return nil, &ValidationError{Errs: []error{ErrNonPositiveTotal}}
	}

	a := &Attempt{
		ID:        uuid.NewString(),
		Amount:    amount,
		Email:     creds.Email,
		CartID:    creds.CartID,
		Snapshot:  snapshot,
		Address:   sum.Address,
		Option:    quote.Option,
		Totals:    totals,
		CreatedAt: time.Now(),
	}
	return a, nil
}

// ----------------- PlaceCashOrder -----------------

// PlaceCashOrder creates the order of a checkout prepared for cash on
// delivery. The gateway is skipped; the order is finalized under a synthetic
// intent key so RetryFinalize and the journal treat it like a paid attempt.
func (m *Machine) PlaceCashOrder(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	if err := m.busyErr(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.state != StateAddressReady || m.summary == nil {
		m.mu.Unlock()
		return nil, ErrNotPrepared
	}
	if m.summary.Method != MethodCash {
		m.mu.Unlock()
		return nil, ErrMethodMismatch
	}
	m.starting = true
	sum := *m.summary
	m.mu.Unlock()

	a, err := m.newAttempt(ctx, sum)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	a.IntentID = cashIntentPrefix + a.ID
	if err := m.setState(ctx, StateFinalizing); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.attempt = a
	m.last = nil
	m.mu.Unlock()

	ctx = logger.WithAttemptID(ctx, a.ID)
	log := logger.FromCtx(ctx).With(zap.String("layer", "checkout"), zap.String("intent_id", a.IntentID))
	if err := m.deps.Journal.Save(ctx, recordOf(a)); err != nil {
		log.Error("cash order not journaled", zap.Error(err))
	}

	log.Info("placing cash on delivery order", zap.Int64("amount", a.Amount))
	res, err := m.placeOrder(ctx, a, "")
	var ferr *FinalizeError
	if errors.As(err, &ferr) {
		m.deps.Metrics.FinalizeFailure()
		return res, err
	}
	m.deps.Metrics.CashOrderPlaced()
	return res, err
}

// ----------------- Await -----------------

// Await blocks until the attempt's return outcome arrives, then polls the
// gateway and concludes the attempt.
func (m *Machine) Await(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	if m.attempt == nil || m.state != StateAwaitingGateway {
		m.mu.Unlock()
		return nil, ErrNoAttempt
	}
	if m.awaiting {
		m.mu.Unlock()
		return nil, ErrAwaitInProgress
	}
	m.awaiting = true
	a := m.attempt
	m.mu.Unlock()
	defer m.doneAwaiting()

	select {
	case o := <-a.interceptor.Outcomes():
		return m.conclude(ctx, a, o)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Machine) doneAwaiting() {
	m.mu.Lock()
	m.awaiting = false
	m.mu.Unlock()
}

// Cancel is the shopper closing the payment window. Polling stops and the
// machine returns to ADDRESS_READY with the cart untouched.
func (m *Machine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	a := m.attempt
	switch m.state {
	case StatePolling:
		m.userCancelled = true
		cancel := m.cancelPoll
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil

	case StateAwaitingGateway:
		m.userCancelled = true
		if m.awaiting {
			m.mu.Unlock()
			a.interceptor.Close()
			return nil
		}
		m.awaiting = true
		m.mu.Unlock()
		defer m.doneAwaiting()

		a.interceptor.Close()
		_, err := m.conclude(ctx, a, <-a.interceptor.Outcomes())
		return err

	default:
		m.mu.Unlock()
		return ErrNoAttempt
	}
}

// intentForgetter is implemented by gateways that keep per-intent state.
type intentForgetter interface {
	Forget(intentID string)
}

// conclude runs POLLING to a terminal state for an outcome.
func (m *Machine) conclude(ctx context.Context, a *Attempt, o returnurl.Outcome) (*Result, error) {
	timer := metrics.StartTimer()
	polls := 0

	res, err := m.resolve(ctx, a, o, &polls)
	if f, ok := m.deps.Gateway.(intentForgetter); ok {
		f.Forget(a.IntentID)
	}
	if res != nil {
		m.deps.Metrics.Concluded(string(res.Outcome), polls, timer.Duration())
	}
	var ferr *FinalizeError
	if errors.As(err, &ferr) {
		m.deps.Metrics.FinalizeFailure()
	}
	return res, err
}

func (m *Machine) resolve(ctx context.Context, a *Attempt, o returnurl.Outcome, polls *int) (*Result, error) {
	ctx = logger.WithAttemptID(ctx, a.ID)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "checkout"),
		zap.String("intent_id", a.IntentID),
		zap.String("rcode", o.RCode),
		zap.Bool("signed", o.Signed),
	)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if err := m.setState(ctx, StatePolling); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.cancelPoll = cancel
	cancelled := m.userCancelled
	m.mu.Unlock()

	if o.Cancelled || cancelled {
		log.Info("payment window closed by shopper")
		return m.settleUnpaid(ctx, a, StateCancelled, OutcomeCancelled, o.RCode)
	}

	// Only a signed failure code may end the attempt without asking the
	// gateway; success is never taken from the redirect.
	if o.Signed {
		switch o.Kind() {
		case payment.KindFailed:
			log.Info("gateway reported failure", zap.String("reason", payment.DescribeRCode(o.RCode)))
			return m.settleUnpaid(ctx, a, StateFailed, OutcomeFailed, o.RCode)
		case payment.KindCancelled:
			return m.settleUnpaid(ctx, a, StateCancelled, OutcomeCancelled, o.RCode)
		}
	}

	seen, attempts, err := poll.Until(pollCtx, poll.Config{
		Interval:    m.cfg.PollInterval,
		MaxAttempts: m.cfg.PollMaxAttempts,
		Clock:       m.deps.Clock,
	}, func(ctx context.Context, n int) (*payment.StatusResponse, bool, error) {
		res, err := m.deps.Gateway.GetStatus(ctx, a.IntentID)
		if err != nil {
			log.Debug("status poll failed", zap.Int("attempt", n), zap.Error(err))
			return nil, false, err
		}
		return res, res.Status.IsTerminal(), nil
	})
	*polls = attempts

	m.mu.Lock()
	cancelled = m.userCancelled
	m.mu.Unlock()

	switch {
	case err == nil && seen.Status == payment.StatusPaid && amountDiffers(seen.Amount, a.Amount):
		log.Error("gateway reports paid with a different amount",
			zap.Int64("gateway_amount", seen.Amount), zap.Int64("amount", a.Amount))
		return m.settleUnpaid(ctx, a, StateFailed, OutcomeUnconfirmed, o.RCode)
	case err == nil && seen.Status == payment.StatusPaid:
		log.Info("payment confirmed", zap.Int("polls", attempts))
		return m.finalize(ctx, a, o.RCode)
	case err == nil:
		log.Info("payment failed at gateway", zap.Int("polls", attempts))
		return m.settleUnpaid(ctx, a, StateFailed, OutcomeFailed, o.RCode)
	case cancelled:
		log.Info("polling cancelled by shopper", zap.Int("polls", attempts))
		return m.settleUnpaid(ctx, a, StateCancelled, OutcomeCancelled, o.RCode)
	default:
		log.Warn("payment unconfirmed", zap.Int("polls", attempts), zap.Error(err))
		return m.settleUnpaid(ctx, a, StateFailed, OutcomeUnconfirmed, o.RCode)
	}
}

// amountDiffers reports a gateway amount that contradicts the intent. A zero
// gateway amount means the field was absent.
func amountDiffers(gateway, intent int64) bool {
	return gateway != 0 && gateway != intent
}

// settleUnpaid passes through the terminal state and back to ADDRESS_READY.
// The cart is not touched.
func (m *Machine) settleUnpaid(ctx context.Context, a *Attempt, via State, outcome Outcome, rcode string) (*Result, error) {
	res := &Result{
		Outcome:  outcome,
		IntentID: a.IntentID,
		RCode:    rcode,
		Message:  messages[outcome],
	}

	m.mu.Lock()
	if err := m.setState(ctx, via); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.setState(ctx, StateAddressReady); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.attempt = nil
	m.cancelPoll = nil
	m.userCancelled = false
	m.last = res
	m.mu.Unlock()

	status := RecordFailed
	switch outcome {
	case OutcomeCancelled:
		status = RecordCancelled
	case OutcomeUnconfirmed:
		status = RecordUnconfirmed
	}
	m.markJournal(ctx, a, status, "", "")
	return res, nil
}

// finalize runs PAID → FINALIZING → COMPLETE. A finalize failure leaves the
// machine in FINALIZING and the journal in FINALIZE_FAILED for RetryFinalize.
func (m *Machine) finalize(ctx context.Context, a *Attempt, rcode string) (*Result, error) {
	m.mu.Lock()
	if err := m.setState(ctx, StatePaid); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.setState(ctx, StateFinalizing); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.cancelPoll = nil
	m.userCancelled = false
	m.mu.Unlock()

	return m.placeOrder(ctx, a, rcode)
}

// placeOrder finalizes an attempt already in FINALIZING.
func (m *Machine) placeOrder(ctx context.Context, a *Attempt, rcode string) (*Result, error) {
	o, err := m.deps.Finalizer.Finalize(ctx, a.Email, a.CartID, a.finalizeRequest())
	if err != nil {
		logger.FromCtx(ctx).Error("finalize failed",
			zap.String("intent_id", a.IntentID),
			zap.Error(err),
		)
		m.markJournal(ctx, a, RecordFinalizeFailed, "", err.Error())
		msg := "Payment received but the order could not be created yet. It will be retried."
		if isCashIntent(a.IntentID) {
			msg = "The order could not be created yet. It will be retried."
		}
		res := &Result{
			Outcome:  placedOutcome(a.IntentID),
			IntentID: a.IntentID,
			RCode:    rcode,
			Message:  msg,
		}
		m.mu.Lock()
		m.last = res
		m.mu.Unlock()
		return res, &FinalizeError{IntentID: a.IntentID, Err: err}
	}

	return m.complete(ctx, a, o, rcode), nil
}

// complete clears the cart and closes the attempt. Must be in FINALIZING.
func (m *Machine) complete(ctx context.Context, a *Attempt, o *order.Order, rcode string) *Result {
	m.deps.Store.Clear()
	m.markJournal(ctx, a, RecordComplete, o.OrderID, "")

	outcome := placedOutcome(a.IntentID)
	res := &Result{
		Outcome:  outcome,
		IntentID: a.IntentID,
		RCode:    rcode,
		Order:    o,
		Message:  messages[outcome],
	}

	m.mu.Lock()
	if m.state == StateFinalizing {
		_ = m.setState(ctx, StateComplete)
	}
	if m.attempt != nil && m.attempt.IntentID == a.IntentID {
		m.attempt = nil
	}
	m.summary = nil
	m.last = res
	m.mu.Unlock()

	logger.FromCtx(ctx).Info("checkout complete",
		zap.String("intent_id", a.IntentID),
		zap.String("order_id", o.OrderID),
	)

	if m.deps.Notifier != nil {
		if err := m.deps.Notifier.OrderPlaced(ctx, a.Email, o); err != nil {
			logger.FromCtx(ctx).Warn("order mail not sent", zap.Error(err))
		}
	}
	return res
}

// markJournal moves the attempt's record to status. A record that was never
// saved is written in full so the attempt stays recoverable.
func (m *Machine) markJournal(ctx context.Context, a *Attempt, status RecordStatus, orderID, lastErr string) {
	err := m.deps.Journal.Mark(ctx, a.IntentID, status, orderID, lastErr)
	if errors.Is(err, ErrUnknownAttempt) {
		rec := recordOf(a)
		rec.Status = status
		rec.OrderID = orderID
		rec.LastError = lastErr
		err = m.deps.Journal.Save(ctx, rec)
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update checkout journal",
			zap.String("intent_id", a.IntentID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// ----------------- Resume -----------------

// Resume completes an attempt from its return outcome alone. The frozen cart,
// address and totals come from the journal, so this works after a restart
// or a page reload. A completed intent is never re-entered.
func (m *Machine) Resume(ctx context.Context, o returnurl.Outcome) (*Result, error) {
	if o.IntentID == "" {
		return nil, ErrUnknownAttempt
	}
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "checkout"),
		zap.String("method", "Resume"),
		zap.String("intent_id", o.IntentID),
	)

	m.mu.Lock()
	if a := m.attempt; a != nil && a.IntentID == o.IntentID {
		switch {
		case m.state == StateAwaitingGateway && m.awaiting:
			m.mu.Unlock()
			a.interceptor.Publish(o)
			return nil, ErrAwaitInProgress
		case m.state == StateAwaitingGateway:
			m.awaiting = true
			m.mu.Unlock()
			defer m.doneAwaiting()
			a.interceptor.Publish(o)
			return m.conclude(ctx, a, <-a.interceptor.Outcomes())
		case m.state == StateFinalizing:
			m.mu.Unlock()
			return m.retryResult(ctx, o)
		default:
			m.mu.Unlock()
			return nil, ErrAwaitInProgress
		}
	}
	m.mu.Unlock()

	rec, err := m.deps.Journal.Get(ctx, o.IntentID)
	if err != nil {
		return nil, err
	}
	if creds, ok := m.credentials(ctx); ok && creds.Email != rec.Email {
		log.Warn("resume for another shopper's intent refused")
		return nil, ErrUnknownAttempt
	}

	switch rec.Status {
	case RecordComplete:
		log.Info("intent already complete")
		outcome := placedOutcome(rec.IntentID)
		return &Result{
			Outcome:  outcome,
			IntentID: rec.IntentID,
			RCode:    o.RCode,
			Order:    m.recordedOrder(ctx, rec),
			Message:  messages[outcome],
		}, nil
	case RecordFinalizeFailed:
		return m.retryResult(ctx, o)
	}
	if isCashIntent(rec.IntentID) {
		// never went through the gateway
		return m.retryResult(ctx, o)
	}

	m.mu.Lock()
	if err := m.busyErr(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	a := attemptOf(rec)
	a.interceptor = returnurl.NewInterceptor(m.cfg.CloseURL, m.cfg.GatewaySecret, a.IntentID)
	if err := m.setState(ctx, StateAwaitingGateway); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.attempt = a
	m.awaiting = true
	m.mu.Unlock()
	defer m.doneAwaiting()

	log.Info("resuming attempt from journal", zap.String("previous_status", string(rec.Status)))
	a.interceptor.Publish(o)
	return m.conclude(ctx, a, <-a.interceptor.Outcomes())
}

func (m *Machine) retryResult(ctx context.Context, o returnurl.Outcome) (*Result, error) {
	ord, err := m.RetryFinalize(ctx, o.IntentID)
	if err != nil {
		return nil, err
	}
	outcome := placedOutcome(o.IntentID)
	return &Result{
		Outcome:  outcome,
		IntentID: o.IntentID,
		RCode:    o.RCode,
		Order:    ord,
		Message:  messages[outcome],
	}, nil
}

func (m *Machine) recordedOrder(ctx context.Context, rec *Record) *order.Order {
	if rec.OrderID != "" {
		if o, err := m.deps.Finalizer.GetOrder(ctx, rec.Email, rec.OrderID); err == nil {
			return o
		}
	}
	a := attemptOf(rec)
	paid := order.PaymentStatusPaid
	if isCashIntent(rec.IntentID) {
		paid = order.PaymentStatusPending
	}
	return &order.Order{
		OrderID:       rec.OrderID,
		Status:        order.StatusPending,
		Items:         a.items(),
		Address:       rec.Address,
		Totals:        rec.Totals,
		PaymentStatus: paid,
		IntentID:      rec.IntentID,
	}
}

// ----------------- RetryFinalize -----------------

// RetryFinalize re-issues finalize for a paid attempt whose order was not
// created, always with the same intent id. A completed intent returns its
// recorded order.
func (m *Machine) RetryFinalize(ctx context.Context, intentID string) (*order.Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "checkout"),
		zap.String("method", "RetryFinalize"),
		zap.String("intent_id", intentID),
	)

	// A live FINALIZING attempt is retried from memory; its journal writes
	// may have failed.
	m.mu.Lock()
	var a *Attempt
	if m.attempt != nil && m.attempt.IntentID == intentID && m.state == StateFinalizing {
		a = m.attempt
	}
	m.mu.Unlock()

	if a == nil {
		rec, err := m.deps.Journal.Get(ctx, intentID)
		if err != nil {
			return nil, err
		}
		switch rec.Status {
		case RecordComplete:
			return m.recordedOrder(ctx, rec), nil
		case RecordFinalizeFailed:
		case RecordPending:
			if !isCashIntent(intentID) {
				return nil, ErrNotFinalizable
			}
		default:
			return nil, ErrNotFinalizable
		}
		a = attemptOf(rec)
	}

	o, err := m.deps.Finalizer.Finalize(ctx, a.Email, a.CartID, a.finalizeRequest())
	if err != nil {
		log.Error("finalize retry failed", zap.Error(err))
		m.deps.Metrics.FinalizeFailure()
		m.markJournal(ctx, a, RecordFinalizeFailed, "", err.Error())
		return nil, &FinalizeError{IntentID: intentID, Err: err}
	}

	m.mu.Lock()
	mine := m.attempt != nil && m.attempt.IntentID == intentID
	idle := m.attempt == nil && !m.state.InFlight()
	m.mu.Unlock()

	if mine || idle {
		return m.complete(ctx, a, o, "").Order, nil
	}

	// Another attempt is running on this machine; record the order without
	// touching its cart.
	m.markJournal(ctx, a, RecordComplete, o.OrderID, "")
	log.Info("order created on retry", zap.String("order_id", o.OrderID))
	return o, nil
}
