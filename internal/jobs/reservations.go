package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/database"
)

// ReservationState is the lifecycle of a reservation row.
type ReservationState string

const (
	ReservationPending  ReservationState = "pending"
	ReservationComplete ReservationState = "complete"
	ReservationLost     ReservationState = "lost"
)

// lostAfter is how long a pending reservation may go unacknowledged by the
// exchange before a sweep marks it lost.
const lostAfter = 24 * time.Hour

// OrderReservation mirrors a row of order_reservations.
type OrderReservation struct {
	ClientOrderID string
	CorrelationID string
	Instrument    string
	Action        string
	Size          int64
	Unit          string
	TargetUsd     decimal.Decimal
	PreTradeUsd   decimal.Decimal
	State         ReservationState
	CreatedAt     time.Time
}

// OrderReservationStore enforces at-most-one-pending-order-per-instrument.
type OrderReservationStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewOrderReservationStore wraps db.
func NewOrderReservationStore(db *database.DB, log zerolog.Logger) *OrderReservationStore {
	return &OrderReservationStore{db: db, log: log.With().Str("component", "jobs.order_reservations").Logger()}
}

// TryReserve verifies no pending reservation exists for instrument and, if
// so, inserts a new row keyed by clientOrderID within the same serializable
// transaction. Returns ErrNoSlot if a pending row already exists.
func (s *OrderReservationStore) TryReserve(ctx context.Context, r OrderReservation) error {
	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM order_reservations
			WHERE instrument = ? AND state = 'pending'`, r.Instrument).Scan(&n); err != nil {
			return fmt.Errorf("check pending order reservation for %s: %w", r.Instrument, err)
		}
		if n > 0 {
			return ErrNoSlot
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO order_reservations
			(client_order_id, correlation_id, instrument, action, size, unit, target_usd, pre_trade_usd, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
			r.ClientOrderID, r.CorrelationID, r.Instrument, r.Action, r.Size, r.Unit,
			r.TargetUsd.String(), r.PreTradeUsd.String(), time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("reserve order %s: %w", r.ClientOrderID, err)
		}
		return nil
	})
}

// ListPending returns every pending order reservation, oldest first.
func (s *OrderReservationStore) ListPending(ctx context.Context) ([]OrderReservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_order_id, correlation_id, instrument, action, size, unit,
		target_usd, pre_trade_usd, state, created_at FROM order_reservations
		WHERE state = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending order reservations: %w", err)
	}
	defer rows.Close()

	var out []OrderReservation
	for rows.Next() {
		var r OrderReservation
		var target, preTrade, state, createdAt string
		if err := rows.Scan(&r.ClientOrderID, &r.CorrelationID, &r.Instrument, &r.Action, &r.Size, &r.Unit,
			&target, &preTrade, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order reservation: %w", err)
		}
		r.TargetUsd, _ = decimal.NewFromString(target)
		r.PreTradeUsd, _ = decimal.NewFromString(preTrade)
		r.State = ReservationState(state)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Complete marks a reservation complete once the exchange has acknowledged
// it (polled separately via Client.OrderDetails).
func (s *OrderReservationStore) Complete(ctx context.Context, clientOrderID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE order_reservations SET state = 'complete' WHERE client_order_id = ?`, clientOrderID)
	if err != nil {
		return fmt.Errorf("complete order reservation %s: %w", clientOrderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, clientOrderID)
	}
	return nil
}

// SweepLost marks pending reservations older than lostAfter as lost,
// freeing their instrument slot for a new attempt, and purges lost rows
// that have sat for another full lostAfter window.
func (s *OrderReservationStore) SweepLost(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-lostAfter).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE order_reservations SET state = 'lost'
		WHERE state = 'pending' AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep lost order reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep lost order reservations: rows affected: %w", err)
	}
	purgeCutoff := time.Now().UTC().Add(-2 * lostAfter).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM order_reservations
		WHERE state = 'lost' AND created_at < ?`, purgeCutoff); err != nil {
		return n, fmt.Errorf("purge lost order reservations: %w", err)
	}
	return n, nil
}

// TransferReservation mirrors a row of transfer_reservations.
type TransferReservation struct {
	ClientTransferID string
	CorrelationID    string
	Action           string
	TransferType     string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	FromWallet       string
	ToWallet         string
	SnapshotJSON     string
	State            ReservationState
	CreatedAt        time.Time
}

// TransferReservationStore enforces at-most-one-pending-transfer-per-type.
type TransferReservationStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTransferReservationStore wraps db.
func NewTransferReservationStore(db *database.DB, log zerolog.Logger) *TransferReservationStore {
	return &TransferReservationStore{db: db, log: log.With().Str("component", "jobs.transfer_reservations").Logger()}
}

// TryReserve is the transfer analog of OrderReservationStore.TryReserve.
func (s *TransferReservationStore) TryReserve(ctx context.Context, r TransferReservation) error {
	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM transfer_reservations
			WHERE transfer_type = ? AND state = 'pending'`, r.TransferType).Scan(&n); err != nil {
			return fmt.Errorf("check pending transfer reservation for %s: %w", r.TransferType, err)
		}
		if n > 0 {
			return ErrNoSlot
		}

		snapshot := r.SnapshotJSON
		if snapshot == "" {
			snapshot = "{}"
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO transfer_reservations
			(client_transfer_id, correlation_id, action, transfer_type, amount, fee, from_wallet, to_wallet, snapshot_json, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
			r.ClientTransferID, r.CorrelationID, r.Action, r.TransferType, r.Amount.String(), r.Fee.String(),
			r.FromWallet, r.ToWallet, snapshot, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("reserve transfer %s: %w", r.ClientTransferID, err)
		}
		return nil
	})
}

// ListPending returns every pending transfer reservation, oldest first.
func (s *TransferReservationStore) ListPending(ctx context.Context) ([]TransferReservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT client_transfer_id, correlation_id, action, transfer_type,
		amount, fee, from_wallet, to_wallet, snapshot_json, state, created_at FROM transfer_reservations
		WHERE state = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending transfer reservations: %w", err)
	}
	defer rows.Close()

	var out []TransferReservation
	for rows.Next() {
		var r TransferReservation
		var amount, fee, state, createdAt string
		if err := rows.Scan(&r.ClientTransferID, &r.CorrelationID, &r.Action, &r.TransferType,
			&amount, &fee, &r.FromWallet, &r.ToWallet, &r.SnapshotJSON, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transfer reservation: %w", err)
		}
		r.Amount, _ = decimal.NewFromString(amount)
		r.Fee, _ = decimal.NewFromString(fee)
		r.State = ReservationState(state)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Complete marks a transfer reservation complete.
func (s *TransferReservationStore) Complete(ctx context.Context, clientTransferID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE transfer_reservations SET state = 'complete' WHERE client_transfer_id = ?`, clientTransferID)
	if err != nil {
		return fmt.Errorf("complete transfer reservation %s: %w", clientTransferID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, clientTransferID)
	}
	return nil
}

// SweepLost marks pending transfer reservations older than lostAfter as
// lost and purges lost rows that have sat for another full lostAfter
// window.
func (s *TransferReservationStore) SweepLost(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-lostAfter).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `UPDATE transfer_reservations SET state = 'lost'
		WHERE state = 'pending' AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep lost transfer reservations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep lost transfer reservations: rows affected: %w", err)
	}
	purgeCutoff := time.Now().UTC().Add(-2 * lostAfter).Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transfer_reservations
		WHERE state = 'lost' AND created_at < ?`, purgeCutoff); err != nil {
		return n, fmt.Errorf("purge lost transfer reservations: %w", err)
	}
	return n, nil
}
