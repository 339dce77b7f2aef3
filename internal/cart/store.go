package cart

import (
	"sync"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// Event is a cart mutation. Reduce applies events to a State.
type Event interface {
	eventName() string
}

type AddLine struct{ Line Line }

type UpdateQuantity struct {
	Key      Key
	Quantity int
}

type UpdateQuantityByServerLineID struct {
	ServerLineID string
	Quantity     int
}

type RemoveLine struct{ Key Key }

type RemoveByServerLineID struct{ ServerLineID string }

// ReplaceCart swaps in server truth.
type ReplaceCart struct{ Lines []Line }

// Rollback restores a snapshot taken before an optimistic mutation.
type Rollback struct{ Snapshot State }

type Clear struct{}

func (AddLine) eventName() string                      { return "add_line" }
func (UpdateQuantity) eventName() string               { return "update_quantity" }
func (UpdateQuantityByServerLineID) eventName() string { return "update_quantity_by_server_line_id" }
func (RemoveLine) eventName() string                   { return "remove_line" }
func (RemoveByServerLineID) eventName() string         { return "remove_by_server_line_id" }
func (ReplaceCart) eventName() string                  { return "replace_cart" }
func (Rollback) eventName() string                     { return "rollback" }
func (Clear) eventName() string                        { return "clear" }

// Reduce is the pure transition function of the cart. It never mutates prev.
// Invalid events (non-positive add quantity, unknown keys) leave the state as is.
func Reduce(prev State, ev Event) State {
	switch e := ev.(type) {
	case AddLine:
		return reduceAdd(prev, e.Line)
	case UpdateQuantity:
		return reduceSetQuantity(prev, e.Key, e.Quantity)
	case UpdateQuantityByServerLineID:
		return reduceSetQuantity(prev, ServerKey(e.ServerLineID), e.Quantity)
	case RemoveLine:
		return reduceRemove(prev, e.Key)
	case RemoveByServerLineID:
		return reduceRemove(prev, ServerKey(e.ServerLineID))
	case ReplaceCart:
		return normalize(e.Lines)
	case Rollback:
		return e.Snapshot.clone()
	case Clear:
		return State{}
	default:
		return prev.clone()
	}
}

func reduceAdd(prev State, item Line) State {
	next := prev.clone()
	if item.Quantity <= 0 || item.Price < 0 {
		return next
	}

	idx := next.index(item.Key())
	if idx < 0 && item.ServerLineID == "" {
		// A locally added variant merges into the server row for that variant.
		vk := item.VariantKey()
		for i, l := range next.Lines {
			if l.VariantKey() == vk {
				idx = i
				break
			}
		}
	}

	if idx >= 0 {
		next.Lines[idx].Quantity += item.Quantity
		return next
	}
	next.Lines = append(next.Lines, item.clone())
	return next
}

func reduceSetQuantity(prev State, k Key, qty int) State {
	if qty <= 0 {
		return reduceRemove(prev, k)
	}
	next := prev.clone()
	if idx := next.index(k); idx >= 0 {
		next.Lines[idx].Quantity = qty
	}
	return next
}

func reduceRemove(prev State, k Key) State {
	next := State{}
	for _, l := range prev.Lines {
		if l.Key() != k {
			next.Lines = append(next.Lines, l.clone())
		}
	}
	return next
}

// normalize enforces one line per key and quantity >= 1 on server payloads.
func normalize(lines []Line) State {
	next := State{}
	pos := make(map[Key]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 || l.Price < 0 {
			continue
		}
		if i, ok := pos[l.Key()]; ok {
			next.Lines[i].Quantity += l.Quantity
			continue
		}
		pos[l.Key()] = len(next.Lines)
		next.Lines = append(next.Lines, l.clone())
	}
	return next
}

// Store is the session-owned cart. All mutations go through Dispatch.
type Store struct {
	mu    sync.Mutex
	state State
}

func NewStore(lines ...Line) *Store {
	return &Store{state: normalize(lines)}
}

// Dispatch applies ev and returns a copy of the resulting state.
func (s *Store) Dispatch(ev Event) State {
	s.mu.Lock()
	s.state = Reduce(s.state, ev)
	out := s.state.clone()
	s.mu.Unlock()

	logger.L().Debug("cart event applied",
		zap.String("event", ev.eventName()),
		zap.Int("lines", out.Len()),
		zap.Int64("total", out.Total()),
	)
	return out
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func (s *Store) Lines() []Line {
	return s.Snapshot().Lines
}

// GetTotal is Σ price·quantity over the current lines.
func (s *Store) GetTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Total()
}

func (s *Store) Find(k Key) (Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Find(k)
}

func (s *Store) AddLine(item Line) (State, error) {
	if item.Quantity <= 0 {
		return s.Snapshot(), ErrInvalidQuantity
	}
	if item.Price < 0 {
		return s.Snapshot(), ErrInvalidPrice
	}
	return s.Dispatch(AddLine{Line: item}), nil
}

// UpdateQuantity sets qty locally; qty <= 0 removes the line.
func (s *Store) UpdateQuantity(k Key, qty int) (State, error) {
	if _, ok := s.Find(k); !ok {
		return s.Snapshot(), ErrLineNotFound
	}
	return s.Dispatch(UpdateQuantity{Key: k, Quantity: qty}), nil
}

func (s *Store) UpdateQuantityByServerLineID(id string, qty int) (State, error) {
	return s.UpdateQuantity(ServerKey(id), qty)
}

func (s *Store) RemoveLine(k Key) (State, error) {
	if _, ok := s.Find(k); !ok {
		return s.Snapshot(), ErrLineNotFound
	}
	return s.Dispatch(RemoveLine{Key: k}), nil
}

func (s *Store) RemoveByServerLineID(id string) (State, error) {
	return s.RemoveLine(ServerKey(id))
}

func (s *Store) ReplaceCart(lines []Line) State {
	return s.Dispatch(ReplaceCart{Lines: lines})
}

func (s *Store) Rollback(snapshot State) State {
	return s.Dispatch(Rollback{Snapshot: snapshot})
}

func (s *Store) Clear() State {
	return s.Dispatch(Clear{})
}
