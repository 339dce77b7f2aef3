package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout-core/internal/cart"
	"checkout-core/internal/order"
	"checkout-core/internal/shipping"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		AttemptID:   "att-1",
		IntentID:    "int-1",
		Email:       "an@shop.test",
		CartID:      "7",
		Amount:      300000,
		Status:      RecordPending,
		RedirectURL: "https://pay.test/int-1",
		Snapshot:    cart.State{Lines: []cart.Line{teeLine()}},
		Address:     *testAddress(),
		Option:      shipping.OptionStandard,
		Totals:      order.Totals{Subtotal: 300000, Total: 300000},
	}
}

func TestMemoryJournal(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	require.NoError(t, j.Save(ctx, sampleRecord()))
	second := sampleRecord()
	second.IntentID = "int-2"
	require.NoError(t, j.Save(ctx, second))

	t.Run("Get", func(t *testing.T) {
		rec, err := j.Get(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, int64(300000), rec.Amount)
		assert.Equal(t, teeLine(), rec.Snapshot.Lines[0])

		_, err = j.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrUnknownAttempt)
	})

	t.Run("Mark", func(t *testing.T) {
		require.NoError(t, j.Mark(ctx, "int-1", RecordComplete, "ord-9", ""))
		require.NoError(t, j.Mark(ctx, "int-1", RecordComplete, "", ""))

		rec, err := j.Get(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, RecordComplete, rec.Status)
		assert.Equal(t, "ord-9", rec.OrderID)
		assert.True(t, rec.UpdatedAt.After(rec.CreatedAt))

		assert.ErrorIs(t, j.Mark(ctx, "missing", RecordFailed, "", ""), ErrUnknownAttempt)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		pending, err := j.ListByStatus(ctx, RecordPending, RecordFinalizeFailed)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "int-2", pending[0].IntentID)

		all, err := j.ListByStatus(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "int-1", all[0].IntentID)
	})
}

var attemptColumns = []string{
	"intent_id", "attempt_id", "email", "cart_id", "amount", "status", "payload",
	"order_id", "last_error", "created_at", "updated_at",
}

func payloadOf(t *testing.T, rec Record) []byte {
	t.Helper()
	body, err := json.Marshal(payload{
		RedirectURL: rec.RedirectURL,
		Snapshot:    rec.Snapshot,
		Address:     rec.Address,
		Option:      rec.Option,
		Totals:      rec.Totals,
	})
	require.NoError(t, err)
	return body
}

func TestPostgresJournal_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := NewPostgresJournal(db)
	rec := sampleRecord()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO checkout_attempts").
			WithArgs("int-1", "att-1", "an@shop.test", "7", int64(300000), "PENDING", payloadOf(t, rec), "", "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, j.Save(context.Background(), rec))
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO checkout_attempts").WillReturnError(errors.New("db error"))

		assert.Error(t, j.Save(context.Background(), rec))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := NewPostgresJournal(db)
	rec := sampleRecord()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(attemptColumns).AddRow(
			"int-1", "att-1", "an@shop.test", "7", int64(300000), "FINALIZE_FAILED", payloadOf(t, rec),
			"", "backend 502", created, created,
		)
		mock.ExpectQuery("SELECT (.+) FROM checkout_attempts WHERE intent_id").
			WithArgs("int-1").
			WillReturnRows(rows)

		got, err := j.Get(context.Background(), "int-1")

		require.NoError(t, err)
		assert.Equal(t, RecordFinalizeFailed, got.Status)
		assert.Equal(t, "backend 502", got.LastError)
		assert.Equal(t, rec.Snapshot, got.Snapshot)
		assert.Equal(t, rec.Address, got.Address)
		assert.Equal(t, rec.Totals, got.Totals)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM checkout_attempts WHERE intent_id").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := j.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrUnknownAttempt)
	})

	t.Run("BadPayload", func(t *testing.T) {
		rows := sqlmock.NewRows(attemptColumns).AddRow(
			"int-1", "att-1", "an@shop.test", "7", int64(300000), "PENDING", []byte("{"),
			"", "", created, created,
		)
		mock.ExpectQuery("SELECT (.+) FROM checkout_attempts").WillReturnRows(rows)

		_, err := j.Get(context.Background(), "int-1")
		assert.ErrorContains(t, err, "decode attempt payload")
	})
}

func TestPostgresJournal_Mark(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := NewPostgresJournal(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE checkout_attempts").
			WithArgs("COMPLETE", "ord-9", "", "int-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, j.Mark(context.Background(), "int-1", RecordComplete, "ord-9", ""))
	})

	t.Run("Unknown", func(t *testing.T) {
		mock.ExpectExec("UPDATE checkout_attempts").WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, j.Mark(context.Background(), "missing", RecordFailed, "", ""), ErrUnknownAttempt)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJournal_ListByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j := NewPostgresJournal(db)
	rec := sampleRecord()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(attemptColumns).
		AddRow("int-1", "att-1", "an@shop.test", "7", int64(300000), "PENDING", payloadOf(t, rec), "", "", created, created).
		AddRow("int-2", "att-2", "an@shop.test", "7", int64(300000), "FINALIZE_FAILED", payloadOf(t, rec), "", "timeout", created, created)
	mock.ExpectQuery("WHERE status = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := j.ListByStatus(context.Background(), RecordPending, RecordFinalizeFailed)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "int-2", got[1].IntentID)
	assert.Equal(t, RecordFinalizeFailed, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
