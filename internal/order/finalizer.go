package order

import (
	"context"
	"errors"
	"strings"
	"sync"

	"checkout-core/internal/logger"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Finalizer turns a paid intent into an order. Calls are keyed by intent
// id: a second Finalize for an intent already finalized in this process
// returns the same order without reaching the backend, and concurrent calls
// for one intent are serialized. Only the most recent intents are
// remembered.
type Finalizer interface {
	Finalize(ctx context.Context, email, cartID string, req FinalizeRequest) (*Order, error)
	GetOrder(ctx context.Context, email, orderID string) (*Order, error)
}

// memoSize bounds how many finalized intents are remembered.
const memoSize = 512

type finalizer struct {
	backend Backend
	memo    *lru.Cache[string, *Order]

	mu    sync.Mutex
	locks map[string]*intentLock
}

// intentLock serializes Finalize per intent. It is dropped from the map
// when its last holder releases it.
type intentLock struct {
	sync.Mutex
	refs int
}

func NewFinalizer(backend Backend) Finalizer {
	memo, _ := lru.New[string, *Order](memoSize)
	return &finalizer{
		backend: backend,
		memo:    memo,
		locks:   make(map[string]*intentLock),
	}
}

func (f *finalizer) acquire(intentID string) *intentLock {
	f.mu.Lock()
	l, ok := f.locks[intentID]
	if !ok {
		l = &intentLock{}
		f.locks[intentID] = l
	}
	l.refs++
	f.mu.Unlock()

	l.Lock()
	return l
}

func (f *finalizer) release(intentID string, l *intentLock) {
	l.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(f.locks, intentID)
	}
}

func (f *finalizer) Finalize(ctx context.Context, email, cartID string, req FinalizeRequest) (*Order, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return nil, ErrMissingIntentID
	}
	if email == "" || cartID == "" {
		return nil, ErrMissingOwner
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "finalizer"),
		zap.String("method", "Finalize"),
		zap.String("intent_id", req.IntentID),
	)

	lock := f.acquire(req.IntentID)
	defer f.release(req.IntentID, lock)

	if o, ok := f.memo.Get(req.IntentID); ok {
		log.Info("intent already finalized", zap.String("order_id", o.OrderID))
		return o, nil
	}

	o, err := f.backend.Finalize(ctx, email, cartID, req)
	if err != nil {
		return nil, err
	}
	fillFromRequest(o, req)

	if o.OrderID == "" {
		// Best effort only: another order placed meanwhile would be picked.
		latest, lerr := f.backend.LatestOrder(ctx, email)
		switch {
		case lerr == nil:
			o.OrderID = latest.OrderID
			o.WeakID = true
			log.Warn("order id resolved from latest order", zap.String("order_id", o.OrderID))
		case errors.Is(lerr, ErrNoOrders):
			log.Warn("finalize returned no order id and user has no orders")
		default:
			log.Warn("finalize returned no order id and latest lookup failed", zap.Error(lerr))
		}
	}

	f.memo.Add(req.IntentID, o)

	log.Info("order finalized", zap.String("order_id", o.OrderID))
	return o, nil
}

func (f *finalizer) GetOrder(ctx context.Context, email, orderID string) (*Order, error) {
	return f.backend.GetOrder(ctx, email, orderID)
}
