package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-core/internal/address"
	"checkout-core/internal/cart"
	"checkout-core/internal/logger"
	"checkout-core/internal/order"
	"checkout-core/internal/shipping"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// payload is the JSONB column: the parts of a record only read back whole.
type payload struct {
	RedirectURL string          `json:"redirectUrl"`
	Snapshot    cart.State      `json:"snapshot"`
	Address     address.Address `json:"address"`
	Option      shipping.Option `json:"option"`
	Totals      order.Totals    `json:"totals"`
}

// PostgresJournal stores attempts in the checkout_attempts table created by
// cmd/migrate.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (j *PostgresJournal) Save(ctx context.Context, rec Record) error {
	body, err := json.Marshal(payload{
		RedirectURL: rec.RedirectURL,
		Snapshot:    rec.Snapshot,
		Address:     rec.Address,
		Option:      rec.Option,
		Totals:      rec.Totals,
	})
	if err != nil {
		return fmt.Errorf("encode attempt payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO checkout_attempts
			(intent_id, attempt_id, email, cart_id, amount, status, payload, order_id, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (intent_id) DO UPDATE SET
			status = EXCLUDED.status,
			payload = EXCLUDED.payload,
			order_id = EXCLUDED.order_id,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`, rec.IntentID, rec.AttemptID, rec.Email, rec.CartID, rec.Amount, string(rec.Status), body, rec.OrderID, rec.LastError)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to save checkout attempt",
			zap.String("intent_id", rec.IntentID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

const selectAttempt = `
	SELECT intent_id, attempt_id, email, cart_id, amount, status, payload,
		order_id, last_error, created_at, updated_at
	FROM checkout_attempts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec    Record
		status string
		body   []byte
		p      payload
	)
	if err := row.Scan(
		&rec.IntentID, &rec.AttemptID, &rec.Email, &rec.CartID, &rec.Amount, &status, &body,
		&rec.OrderID, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode attempt payload: %w", err)
	}
	rec.Status = RecordStatus(status)
	rec.RedirectURL = p.RedirectURL
	rec.Snapshot = p.Snapshot
	rec.Address = p.Address
	rec.Option = p.Option
	rec.Totals = p.Totals
	return &rec, nil
}

func (j *PostgresJournal) Get(ctx context.Context, intentID string) (*Record, error) {
	rec, err := scanRecord(j.db.QueryRowContext(ctx, selectAttempt+` WHERE intent_id = $1`, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownAttempt
	}
	return rec, err
}

func (j *PostgresJournal) Mark(ctx context.Context, intentID string, status RecordStatus, orderID, lastErr string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE checkout_attempts
		SET status = $1,
			order_id = COALESCE(NULLIF($2, ''), order_id),
			last_error = $3,
			updated_at = NOW()
		WHERE intent_id = $4
	`, string(status), orderID, lastErr, intentID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUnknownAttempt
	}
	return nil
}

func (j *PostgresJournal) ListByStatus(ctx context.Context, statuses ...RecordStatus) ([]Record, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	query := selectAttempt + ` ORDER BY created_at`
	args := []any{}
	if len(names) > 0 {
		query = selectAttempt + ` WHERE status = ANY($1) ORDER BY created_at`
		args = append(args, pq.Array(names))
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
