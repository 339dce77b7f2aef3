package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/auth"
	"checkout-core/internal/cart"
	"checkout-core/internal/order"
	"checkout-core/internal/payment"
	"checkout-core/internal/poll"
	"checkout-core/internal/shipping"

	"github.com/cucumber/godog"
)

// scriptedGateway answers status polls from a fixed script.
type scriptedGateway struct {
	mu         sync.Mutex
	statuses   []payment.Status
	repeatLast bool
	polls      int
}

func (g *scriptedGateway) CreateIntent(_ context.Context, req payment.CreateIntentRequest) (*payment.IntentResponse, error) {
	return &payment.IntentResponse{IntentID: "int-1", RedirectURL: "https://pay.test/int-1"}, nil
}

func (g *scriptedGateway) GetStatus(_ context.Context, intentID string) (*payment.StatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	i := g.polls - 1
	if i >= len(g.statuses) {
		if !g.repeatLast || len(g.statuses) == 0 {
			return nil, errors.New("no status scripted")
		}
		i = len(g.statuses) - 1
	}
	return &payment.StatusResponse{IntentID: intentID, Status: g.statuses[i]}, nil
}

type recordingFinalizer struct {
	placed []order.FinalizeRequest
}

func (f *recordingFinalizer) Finalize(_ context.Context, _, _ string, req order.FinalizeRequest) (*order.Order, error) {
	f.placed = append(f.placed, req)
	return &order.Order{OrderID: fmt.Sprintf("ord-%d", len(f.placed)), Totals: req.Totals, IntentID: req.IntentID}, nil
}

func (f *recordingFinalizer) GetOrder(_ context.Context, _, orderID string) (*order.Order, error) {
	return &order.Order{OrderID: orderID}, nil
}

type checkoutFeature struct {
	creds   auth.StaticStore
	store   *cart.Store
	addr    *address.Address
	gw      *scriptedGateway
	fin     *recordingFinalizer
	clock   *poll.VirtualClock
	started time.Time
	m       *Machine
	attempt *Attempt
	result  *Result
}

func (c *checkoutFeature) reset() {
	c.creds = auth.StaticStore{}
	c.store = cart.NewStore()
	c.addr = nil
	c.gw = &scriptedGateway{}
	c.fin = &recordingFinalizer{}
	c.started = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c.clock = poll.NewVirtualClock(c.started)
	c.m = nil
	c.attempt = nil
	c.result = nil
}

func (c *checkoutFeature) machine() *Machine {
	if c.m == nil {
		c.m = NewMachine(Deps{
			Store:       c.store,
			Credentials: c.creds,
			Shipping:    fallbackQuotes,
			Gateway:     c.gw,
			Finalizer:   c.fin,
			Clock:       c.clock,
		}, Config{CloseURL: testCloseURL, GatewaySecret: testSecret})
	}
	return c.m
}

func (c *checkoutFeature) aSignedInShopperWithCart(cartID string) error {
	c.creds = auth.StaticStore{Email: "an@shop.test", CartID: cartID}
	return nil
}

func (c *checkoutFeature) theCartHolds(qty int, name string, price int) error {
	_, err := c.store.AddLine(cart.Line{ProductID: 1, Name: name, Price: int64(price), Quantity: qty})
	return err
}

func (c *checkoutFeature) aShippingAddressIn(city string) error {
	c.addr = &address.Address{Line1: "12 Le Loi", City: city, Country: address.DefaultCountry}
	return nil
}

func (c *checkoutFeature) theGatewayReports(script string) error {
	for _, s := range strings.Split(script, ",") {
		c.gw.statuses = append(c.gw.statuses, payment.ParseStatus(strings.TrimSpace(s)))
	}
	return nil
}

func (c *checkoutFeature) theGatewayReportsForever(status string) error {
	c.gw.repeatLast = true
	return c.theGatewayReports(status)
}

func (c *checkoutFeature) theShopperChecksOutWith(option string) error {
	ctx := context.Background()
	m := c.machine()
	if _, err := m.Prepare(ctx, Input{Address: c.addr, Option: shipping.ParseOption(option)}); err != nil {
		return err
	}
	a, err := m.Start(ctx)
	if err != nil {
		return err
	}
	c.attempt = a
	return nil
}

func (c *checkoutFeature) theGatewayRedirectsWithRcode(rcode string) error {
	if c.attempt.Interceptor().ShouldStartLoad(closeURL(c.attempt.IntentID, rcode, false)) {
		return errors.New("close URL was not intercepted")
	}
	res, err := c.m.Await(context.Background())
	if err != nil {
		return err
	}
	c.result = res
	return nil
}

func (c *checkoutFeature) theShopperClosesThePaymentWindow() error {
	if err := c.m.Cancel(context.Background()); err != nil {
		return err
	}
	res, ok := c.m.LastResult()
	if !ok {
		return errors.New("cancel left no result")
	}
	c.result = res
	return nil
}

func (c *checkoutFeature) theOutcomeIs(want string) error {
	if c.result == nil {
		return errors.New("attempt has not concluded")
	}
	if string(c.result.Outcome) != want {
		return fmt.Errorf("outcome %s, want %s", c.result.Outcome, want)
	}
	return nil
}

func (c *checkoutFeature) anOrderWasPlacedFor(orderID string, total int) error {
	if c.result == nil || c.result.Order == nil {
		return errors.New("no order placed")
	}
	if c.result.Order.OrderID != orderID {
		return fmt.Errorf("order %s, want %s", c.result.Order.OrderID, orderID)
	}
	if got := c.fin.placed[len(c.fin.placed)-1].Totals.Total; got != int64(total) {
		return fmt.Errorf("order total %d, want %d", got, total)
	}
	return nil
}

func (c *checkoutFeature) noOrderWasPlaced() error {
	if len(c.fin.placed) != 0 {
		return fmt.Errorf("%d orders placed", len(c.fin.placed))
	}
	return nil
}

func (c *checkoutFeature) theCartIsEmpty() error {
	if !c.store.Snapshot().IsEmpty() {
		return fmt.Errorf("cart still has %d lines", c.store.Snapshot().Len())
	}
	return nil
}

func (c *checkoutFeature) theCartTotalIs(total int) error {
	if got := c.store.GetTotal(); got != int64(total) {
		return fmt.Errorf("cart total %d, want %d", got, total)
	}
	return nil
}

func (c *checkoutFeature) theMachineIs(state string) error {
	if got := c.m.State(); string(got) != state {
		return fmt.Errorf("machine is %s, want %s", got, state)
	}
	return nil
}

func (c *checkoutFeature) theGatewayWasPolled(n int) error {
	if c.gw.polls != n {
		return fmt.Errorf("polled %d times, want %d", c.gw.polls, n)
	}
	return nil
}

func (c *checkoutFeature) pollingWaited(ms int) error {
	if got := c.clock.Elapsed(c.started); got != time.Duration(ms)*time.Millisecond {
		return fmt.Errorf("waited %s, want %dms", got, ms)
	}
	return nil
}

func InitializeCheckoutScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutFeature{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a signed-in shopper with cart "([^"]*)"$`, tc.aSignedInShopperWithCart)
	ctx.Step(`^the cart holds (\d+) of "([^"]*)" at (\d+)$`, tc.theCartHolds)
	ctx.Step(`^a shipping address in "([^"]*)"$`, tc.aShippingAddressIn)
	ctx.Step(`^the gateway reports "([^"]*)"$`, tc.theGatewayReports)
	ctx.Step(`^the gateway reports "([^"]*)" forever$`, tc.theGatewayReportsForever)

	ctx.Step(`^the shopper checks out with "([^"]*)" shipping$`, tc.theShopperChecksOutWith)
	ctx.Step(`^the gateway redirects with rcode "([^"]*)"$`, tc.theGatewayRedirectsWithRcode)
	ctx.Step(`^the shopper closes the payment window$`, tc.theShopperClosesThePaymentWindow)

	ctx.Step(`^the outcome is "([^"]*)"$`, tc.theOutcomeIs)
	ctx.Step(`^an order "([^"]*)" was placed for (\d+)$`, tc.anOrderWasPlacedFor)
	ctx.Step(`^no order was placed$`, tc.noOrderWasPlaced)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the cart total is (\d+)$`, tc.theCartTotalIs)
	ctx.Step(`^the machine is "([^"]*)"$`, tc.theMachineIs)
	ctx.Step(`^the gateway was polled (\d+) times$`, tc.theGatewayWasPolled)
	ctx.Step(`^polling waited (\d+) milliseconds$`, tc.pollingWaited)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
