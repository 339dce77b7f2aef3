package checkout

import (
	"context"
	"sort"
	"sync"
	"time"

	"checkout-core/internal/address"
	"checkout-core/internal/cart"
	"checkout-core/internal/order"
	"checkout-core/internal/shipping"
)

// RecordStatus is the journal's view of an attempt.
type RecordStatus string

const (
	RecordPending        RecordStatus = "PENDING"
	RecordComplete       RecordStatus = "COMPLETE"
	RecordFailed         RecordStatus = "FAILED"
	RecordCancelled      RecordStatus = "CANCELLED"
	RecordUnconfirmed    RecordStatus = "UNCONFIRMED"
	RecordFinalizeFailed RecordStatus = "FINALIZE_FAILED"
)

// Record is everything needed to finish an attempt from its intent id
// alone: the frozen cart, the address snapshot and the totals.
type Record struct {
	AttemptID   string          `json:"attemptId"`
	IntentID    string          `json:"intentId"`
	Email       string          `json:"email"`
	CartID      string          `json:"cartId"`
	Amount      int64           `json:"amount"`
	Status      RecordStatus    `json:"status"`
	RedirectURL string          `json:"redirectUrl"`
	Snapshot    cart.State      `json:"snapshot"`
	Address     address.Address `json:"address"`
	Option      shipping.Option `json:"option"`
	Totals      order.Totals    `json:"totals"`
	OrderID     string          `json:"orderId,omitempty"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Journal persists attempts so a pending one can be completed after a
// restart and a failed finalize can be retried.
type Journal interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, intentID string) (*Record, error)
	Mark(ctx context.Context, intentID string, status RecordStatus, orderID, lastErr string) error
	ListByStatus(ctx context.Context, statuses ...RecordStatus) ([]Record, error)
}

func recordOf(a *Attempt) Record {
	return Record{
		AttemptID:   a.ID,
		IntentID:    a.IntentID,
		Email:       a.Email,
		CartID:      a.CartID,
		Amount:      a.Amount,
		Status:      RecordPending,
		RedirectURL: a.RedirectURL,
		Snapshot:    a.Snapshot,
		Address:     a.Address,
		Option:      a.Option,
		Totals:      a.Totals,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.CreatedAt,
	}
}

func attemptOf(r *Record) *Attempt {
	return &Attempt{
		ID:          r.AttemptID,
		IntentID:    r.IntentID,
		RedirectURL: r.RedirectURL,
		Amount:      r.Amount,
		Email:       r.Email,
		CartID:      r.CartID,
		Snapshot:    r.Snapshot,
		Address:     r.Address,
		Option:      r.Option,
		Totals:      r.Totals,
		CreatedAt:   r.CreatedAt,
	}
}

// MemoryJournal keeps records for the life of the process.
type MemoryJournal struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]Record), now: time.Now}
}

func (j *MemoryJournal) Save(ctx context.Context, rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.records[rec.IntentID]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = j.now()
	}
	rec.UpdatedAt = j.now()
	j.records[rec.IntentID] = rec
	return nil
}

func (j *MemoryJournal) Get(ctx context.Context, intentID string) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[intentID]
	if !ok {
		return nil, ErrUnknownAttempt
	}
	return &rec, nil
}

func (j *MemoryJournal) Mark(ctx context.Context, intentID string, status RecordStatus, orderID, lastErr string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.records[intentID]
	if !ok {
		return ErrUnknownAttempt
	}
	rec.Status = status
	if orderID != "" {
		rec.OrderID = orderID
	}
	rec.LastError = lastErr
	rec.UpdatedAt = j.now()
	j.records[intentID] = rec
	return nil
}

func (j *MemoryJournal) ListByStatus(ctx context.Context, statuses ...RecordStatus) ([]Record, error) {
	want := make(map[RecordStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range j.records {
		if len(want) == 0 || want[rec.Status] {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}
