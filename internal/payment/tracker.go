package payment

import (
	"context"
	"sync"

	"checkout-core/internal/logger"

	"go.uber.org/zap"
)

// StatusTracker remembers the last status seen per intent and refuses
// regressions, so a stale PENDING read after PAID is ignored.
type StatusTracker struct {
	mu   sync.Mutex
	last map[string]Status
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{last: make(map[string]Status)}
}

// Observe records s for intentID and returns the status callers should act
// on: s when it is a legal successor, otherwise the previous status.
func (t *StatusTracker) Observe(ctx context.Context, intentID string, s Status) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[intentID]
	if !seen {
		t.last[intentID] = s
		return s
	}
	if !prev.CanAdvanceTo(s) {
		logger.FromCtx(ctx).Warn("ignoring regressive intent status",
			zap.String("intent_id", intentID),
			zap.String("previous", string(prev)),
			zap.String("observed", string(s)),
		)
		return prev
	}
	t.last[intentID] = s
	return s
}

func (t *StatusTracker) Last(intentID string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.last[intentID]
	return s, ok
}

// Forget drops intentID once its attempt is over.
func (t *StatusTracker) Forget(intentID string) {
	t.mu.Lock()
	delete(t.last, intentID)
	t.mu.Unlock()
}
