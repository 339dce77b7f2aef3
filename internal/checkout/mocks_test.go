package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/metrics"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/poll"
	"checkout-core/internal/shipping"

	"github.com/stretchr/testify/mock"
)

const (
	testSecret   = "gw-secret"
	testCloseURL = "https://gateway-close.local/"
)

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock

	mu        sync.Mutex
	forgotten []string
}

func (m *MockGateway) Forget(intentID string) {
	m.mu.Lock()
	m.forgotten = append(m.forgotten, intentID)
	m.mu.Unlock()
}

func (m *MockGateway) Forgotten() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.forgotten...)
}

func (m *MockGateway) CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (*payment.IntentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.IntentResponse), args.Error(1)
}

func (m *MockGateway) GetStatus(ctx context.Context, intentID string) (*payment.StatusResponse, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusResponse), args.Error(1)
}

// MockFinalizer is a mock implementation of order.Finalizer
type MockFinalizer struct {
	mock.Mock
}

func (m *MockFinalizer) Finalize(ctx context.Context, email, cartID string, req order.FinalizeRequest) (*order.Order, error) {
	args := m.Called(ctx, email, cartID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, string, string, order.FinalizeRequest) *order.Order); ok {
		return fn(ctx, email, cartID, req), args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockFinalizer) GetOrder(ctx context.Context, email, orderID string) (*order.Order, error) {
	args := m.Called(ctx, email, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) OrderPlaced(ctx context.Context, to string, o *order.Order) error {
	return m.Called(ctx, to, o).Error(0)
}

type quoteFunc func(ctx context.Context, opt shipping.Option, subtotal int64) shipping.Quote

func (f quoteFunc) Quote(ctx context.Context, opt shipping.Option, subtotal int64) shipping.Quote {
	return f(ctx, opt, subtotal)
}

var fallbackQuotes = quoteFunc(func(_ context.Context, opt shipping.Option, _ int64) shipping.Quote {
	return shipping.Fallback(opt)
})

type harness struct {
	store   *cart.Store
	gw      *MockGateway
	fin     *MockFinalizer
	journal *MemoryJournal
	clock   *poll.VirtualClock
	start   time.Time
	m       *Machine
}

// failingSaves is a journal whose Save fails until heal is called.
type failingSaves struct {
	*MemoryJournal

	mu       sync.Mutex
	failing  bool
	attempts int
}

func newFailingSaves() *failingSaves {
	return &failingSaves{MemoryJournal: NewMemoryJournal(), failing: true}
}

func (j *failingSaves) Save(ctx context.Context, rec Record) error {
	j.mu.Lock()
	j.attempts++
	failing := j.failing
	j.mu.Unlock()
	if failing {
		return errors.New("journal unavailable")
	}
	return j.MemoryJournal.Save(ctx, rec)
}

func (j *failingSaves) heal() {
	j.mu.Lock()
	j.failing = false
	j.mu.Unlock()
}

type harnessOption func(*Deps, *Config)

func withOpener(o Opener) harnessOption { return func(d *Deps, _ *Config) { d.Opener = o } }

func withCredentials(c auth.CredentialStore) harnessOption {
	return func(d *Deps, _ *Config) { d.Credentials = c }
}

func withNotifier(n *MockNotifier) harnessOption {
	return func(d *Deps, _ *Config) { d.Notifier = n }
}

func withMetrics(c *metrics.Checkout) harnessOption {
	return func(d *Deps, _ *Config) { d.Metrics = c }
}

func withJournal(j Journal) harnessOption { return func(d *Deps, _ *Config) { d.Journal = j } }

// withRealPolling polls on the wall clock.
func withRealPolling(interval time.Duration, attempts int) harnessOption {
	return func(d *Deps, c *Config) {
		d.Clock = poll.RealClock()
		c.PollInterval = interval
		c.PollMaxAttempts = attempts
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store:   cart.NewStore(teeLine()),
		gw:      new(MockGateway),
		fin:     new(MockFinalizer),
		journal: NewMemoryJournal(),
		start:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h.clock = poll.NewVirtualClock(h.start)

	deps := Deps{
		Store:       h.store,
		Credentials: auth.StaticStore{Email: "an@shop.test", CartID: "7"},
		Shipping:    fallbackQuotes,
		Gateway:     h.gw,
		Finalizer:   h.fin,
		Journal:     h.journal,
		Clock:       h.clock,
	}
	cfg := Config{
		ReturnURL:       "https://shop.test/payment/return",
		CloseURL:        testCloseURL,
		GatewaySecret:   testSecret,
		PollInterval:    1500 * time.Millisecond,
		PollMaxAttempts: 20,
	}
	for _, o := range opts {
		o(&deps, &cfg)
	}
	h.m = NewMachine(deps, cfg)
	return h
}

func teeLine() cart.Line {
	return cart.Line{ProductID: 1, Name: "Tee", Price: 150000, Quantity: 2}
}

func testAddress() *address.Address {
	return &address.Address{Line1: "12 Le Loi", City: "Hue", Country: "VN", Phone: "0900", FullName: "An"}
}

// closeURL builds the provider redirect; signed adds a valid signature.
func closeURL(intentID, rcode string, signed bool) string {
	q := url.Values{}
	q.Set("orderId", intentID)
	q.Set("rcode", rcode)
	if signed {
		q.Set(payment.SignatureParam, payment.Sign(q, testSecret))
	}
	return testCloseURL + "?" + q.Encode()
}

// redirectWith is an opener standing in for the embedded browser: it
// navigates straight to the close URL.
func redirectWith(rcode string, signed bool) Opener {
	return OpenerFunc(func(_ context.Context, a *Attempt) error {
		a.Interceptor().ShouldStartLoad(closeURL(a.IntentID, rcode, signed))
		return nil
	})
}

func status(s payment.Status) *payment.StatusResponse {
	return &payment.StatusResponse{IntentID: "int-1", Status: s, Amount: 300000}
}

func (h *harness) expectIntent() {
	h.gw.On("CreateIntent", mock.Anything, mock.AnythingOfType("payment.CreateIntentRequest")).
		Return(&payment.IntentResponse{IntentID: "int-1", RedirectURL: "https://pay.test/int-1"}, nil)
}

func (h *harness) placedOrder() *order.Order {
	return &order.Order{
		OrderID:       "ord-9",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentStatusPaid,
		IntentID:      "int-1",
		Totals:        order.Totals{Subtotal: 300000, Total: 300000},
	}
}

// prepareAndStart runs the machine up to AWAITING_GATEWAY.
func (h *harness) prepareAndStart(t *testing.T, ctx context.Context) *Attempt {
	t.Helper()
	if _, err := h.m.Prepare(ctx, Input{Address: testAddress(), Option: shipping.OptionStandard}); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	a, err := h.m.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return a
}
