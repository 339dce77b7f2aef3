package cart

import (
	"context"
	"fmt"
	"sync"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// Service runs the optimistic round trips against the backend. Every
// mutation is applied locally first, then confirmed; a rejected mutation is
// rolled back to the pre-mutation snapshot or corrected by a refetch.
type Service struct {
	store   *Store
	backend Backend

	mu       sync.Mutex
	owner    Owner
	inflight map[Key]struct{}
	started  uint64
}

// mutation identifies one in-flight round trip.
type mutation struct {
	key    Key
	seq    uint64
	shared bool // another key was in flight when it began
}

func NewService(store *Store, backend Backend, owner Owner) *Service {
	return &Service{
		store:    store,
		backend:  backend,
		owner:    owner,
		inflight: make(map[Key]struct{}),
	}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Owner() Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SetCartID records a cart id learned elsewhere, e.g. from the access token.
func (s *Service) SetCartID(id string) {
	s.mu.Lock()
	s.owner.CartID = id
	s.mu.Unlock()
}

// resolveOwner looks the cart id up by email when only the email is known.
func (s *Service) resolveOwner(ctx context.Context) (Owner, error) {
	owner := s.Owner()
	if owner.Email == "" {
		return owner, ErrMissingOwner
	}
	if owner.CartID != "" {
		return owner, nil
	}

	id, err := s.backend.CartIDByEmail(ctx, owner.Email)
	if err != nil {
		return owner, fmt.Errorf("%w: %w", ErrMissingOwner, err)
	}

	s.mu.Lock()
	s.owner.CartID = id
	owner = s.owner
	s.mu.Unlock()
	return owner, nil
}

// begin marks k as having a mutation in flight.
func (s *Service) begin(k Key) (mutation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[k]; busy {
		return mutation{}, false
	}
	m := mutation{key: k, seq: s.started, shared: len(s.inflight) > 0}
	s.inflight[k] = struct{}{}
	s.started++
	return m, true
}

func (s *Service) end(m mutation) {
	s.mu.Lock()
	delete(s.inflight, m.key)
	s.mu.Unlock()
}

// overlapped reports whether a mutation on another key ran during m.
func (s *Service) overlapped(m mutation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.shared || s.started != m.seq+1 || len(s.inflight) > 1
}

// rollback restores snapshot. When other keys were mutated meanwhile the
// snapshot also undoes their edits, so the cart is refetched on top of it.
func (s *Service) rollback(ctx context.Context, log *zap.Logger, m mutation, snapshot State) State {
	state := s.store.Rollback(snapshot)
	if !s.overlapped(m) {
		return state
	}
	log.Info("other lines changed during the rejected mutation, refetching")
	return s.reconcile(ctx, log)
}

// Refresh replaces the local cart with server truth.
func (s *Service) Refresh(ctx context.Context) (State, error) {
	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return s.store.Snapshot(), err
	}
	lines, err := s.backend.GetCart(ctx, owner)
	if err != nil {
		return s.store.Snapshot(), fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return s.store.ReplaceCart(lines), nil
}

// reconcile refetches after a confirmed mutation. A failed refetch keeps the
// optimistic state; the next Refresh corrects it.
func (s *Service) reconcile(ctx context.Context, log *zap.Logger) State {
	state, err := s.Refresh(ctx)
	if err != nil {
		log.Warn("refetch after mutation failed, keeping optimistic cart", zap.Error(err))
	}
	return state
}

func (s *Service) Add(ctx context.Context, item Line) (State, error) {
	k := item.Key()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart"),
		zap.String("method", "Add"),
		zap.String("key", string(k)),
		zap.Int("quantity", item.Quantity),
	)

	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return s.store.Snapshot(), err
	}
	op, ok := s.begin(k)
	if !ok {
		return s.store.Snapshot(), ErrMutationInFlight
	}
	defer s.end(op)

	snapshot := s.store.Snapshot()
	if _, err := s.store.AddLine(item); err != nil {
		return snapshot, err
	}

	if err := s.backend.AddProduct(ctx, owner.CartID, item.ProductID, item.Quantity); err != nil {
		log.Warn("add rejected, rolling back", zap.Error(err))
		return s.rollback(ctx, log, op, snapshot), &RollbackError{Op: "add", Key: k, Err: err}
	}

	return s.reconcile(ctx, log), nil
}

// SetQuantity updates a line's quantity; qty <= 0 removes it. A rejected
// update refetches server truth, falling back to the snapshot when the
// refetch fails too.
func (s *Service) SetQuantity(ctx context.Context, k Key, qty int) (State, error) {
	if qty <= 0 {
		return s.Remove(ctx, k)
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart"),
		zap.String("method", "SetQuantity"),
		zap.String("key", string(k)),
		zap.Int("quantity", qty),
	)

	line, ok := s.store.Find(k)
	if !ok {
		return s.store.Snapshot(), ErrLineNotFound
	}
	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return s.store.Snapshot(), err
	}
	op, ok := s.begin(k)
	if !ok {
		return s.store.Snapshot(), ErrMutationInFlight
	}
	defer s.end(op)

	snapshot := s.store.Snapshot()
	if _, err := s.store.UpdateQuantity(k, qty); err != nil {
		return snapshot, err
	}

	if err := s.backend.UpdateQuantity(ctx, owner.CartID, line.ProductID, qty); err != nil {
		log.Warn("quantity update rejected, refetching", zap.Error(err))
		lines, rerr := s.backend.GetCart(ctx, owner)
		if rerr != nil {
			log.Warn("refetch failed, rolling back", zap.Error(rerr))
			return s.store.Rollback(snapshot), &RollbackError{Op: "update quantity", Key: k, Err: err}
		}
		return s.store.ReplaceCart(lines), fmt.Errorf("update quantity: %w: %w", ErrMutationFailed, err)
	}

	return s.reconcile(ctx, log), nil
}

// Remove deletes a line. A rejected delete restores the exact pre-removal
// cart, refetched if other lines changed meanwhile.
func (s *Service) Remove(ctx context.Context, k Key) (State, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cart"),
		zap.String("method", "Remove"),
		zap.String("key", string(k)),
	)

	line, ok := s.store.Find(k)
	if !ok {
		return s.store.Snapshot(), ErrLineNotFound
	}
	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return s.store.Snapshot(), err
	}
	op, ok := s.begin(k)
	if !ok {
		return s.store.Snapshot(), ErrMutationInFlight
	}
	defer s.end(op)

	snapshot := s.store.Snapshot()
	if _, err := s.store.RemoveLine(k); err != nil {
		return snapshot, err
	}

	if err := s.backend.RemoveProduct(ctx, owner.CartID, line.ProductID); err != nil {
		log.Warn("remove rejected, rolling back", zap.Error(err))
		return s.rollback(ctx, log, op, snapshot), &RollbackError{Op: "remove", Key: k, Err: err}
	}

	return s.reconcile(ctx, log), nil
}
