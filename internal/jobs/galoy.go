package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/ledger"
)

// GaloyTransaction is one settled movement reported by the external
// wallet-ledger system this engine backs. The
// wallet system itself is out of scope, so callers supply a
// GaloyTransactionSource implementation instead of this package dialing out
// directly.
type GaloyTransaction struct {
	ID         string
	Direction  ledger.Direction // Credit: user bought USD; Debit: user sold USD
	SatAmount  decimal.Decimal
	CentAmount decimal.Decimal
}

// GaloyTransactionSource lists transactions the wallet-ledger system has
// settled since a given cursor, oldest first.
type GaloyTransactionSource interface {
	ListSince(ctx context.Context, cursor string) ([]GaloyTransaction, string, error)
}

// GaloyPoller folds GaloyTransactionSource entries into this engine's
// ledger, recording each source transaction id in galoy_transactions so a
// repeated poll of the same window never posts twice. Idempotency is keyed
// on the source transaction id in a dedicated table rather than the shared
// reservation stores, since there is no exchange-side order or transfer to
// reserve a slot for.
type GaloyPoller struct {
	db     *database.DB
	ledger *ledger.Ledger
	source GaloyTransactionSource
	log    zerolog.Logger
}

// NewGaloyPoller wires a ledger and an external transaction source.
func NewGaloyPoller(db *database.DB, ldg *ledger.Ledger, source GaloyTransactionSource, log zerolog.Logger) *GaloyPoller {
	return &GaloyPoller{db: db, ledger: ldg, source: source, log: log.With().Str("component", "jobs.galoy").Logger()}
}

// Name identifies this job to the scheduler.
func (p *GaloyPoller) Name() string { return "galoy_poll" }

// Run executes one poll cycle. It satisfies scheduler.Job.
func (p *GaloyPoller) Run(ctx context.Context) error {
	posted, err := p.Poll(ctx)
	if err != nil {
		return err
	}
	if posted > 0 {
		p.log.Info().Int("posted", posted).Msg("galoy transactions folded into ledger")
	}
	return nil
}

// Poll advances the cursor and posts any newly reported transactions. It
// returns the number of transactions newly folded into the ledger.
func (p *GaloyPoller) Poll(ctx context.Context) (int, error) {
	cursor, err := p.cursor(ctx)
	if err != nil {
		return 0, err
	}

	txns, nextCursor, err := p.source.ListSince(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("jobs: list galoy transactions since %q: %w", cursor, err)
	}

	posted := 0
	for _, t := range txns {
		already, err := p.alreadyProcessed(ctx, t.ID)
		if err != nil {
			return posted, err
		}
		if already {
			continue
		}
		if err := p.post(ctx, t); err != nil {
			return posted, fmt.Errorf("jobs: post galoy transaction %s: %w", t.ID, err)
		}
		posted++
	}

	if nextCursor != "" && nextCursor != cursor {
		if err := p.saveCursor(ctx, nextCursor); err != nil {
			return posted, err
		}
	}
	return posted, nil
}

func (p *GaloyPoller) post(ctx context.Context, t GaloyTransaction) error {
	ledgerTxID := uuid.NewString()
	var tx ledger.Transaction
	if t.Direction == ledger.Credit {
		tx = ledger.UserBuysUsd(ledgerTxID, t.ID, t.SatAmount, t.CentAmount)
	} else {
		tx = ledger.UserSellsUsd(ledgerTxID, t.ID, t.SatAmount, t.CentAmount)
	}
	if err := p.ledger.Post(ctx, tx); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO galoy_transactions
		(galoy_tx_id, ledger_tx_id, direction, sat_amount, cent_amount, processed_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(galoy_tx_id) DO NOTHING`,
		t.ID, ledgerTxID, string(t.Direction), t.SatAmount.String(), t.CentAmount.String(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record galoy transaction %s: %w", t.ID, err)
	}
	return nil
}

func (p *GaloyPoller) alreadyProcessed(ctx context.Context, galoyTxID string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM galoy_transactions WHERE galoy_tx_id = ?`, galoyTxID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check galoy transaction %s: %w", galoyTxID, err)
	}
	return count > 0, nil
}

func (p *GaloyPoller) cursor(ctx context.Context) (string, error) {
	var cursor string
	err := p.db.QueryRowContext(ctx, `SELECT galoy_tx_id FROM galoy_transactions ORDER BY processed_at DESC LIMIT 1`).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read galoy cursor: %w", err)
	}
	return cursor, nil
}

// saveCursor is a no-op placeholder: the cursor is derived from the last
// processed row's id (see cursor), so nothing beyond the insert in post
// needs persisting. Kept as a method so a future cursor scheme that isn't
// derivable from galoy_transactions (e.g. a server-side pagination token)
// has a single place to start writing to.
func (p *GaloyPoller) saveCursor(ctx context.Context, cursor string) error {
	return nil
}
