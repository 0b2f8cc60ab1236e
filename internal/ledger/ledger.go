// Package ledger implements the double-entry book: named
// journals and accounts, versioned transaction templates, atomic multi-leg
// transactions, and a balance event stream.
//
// Posting runs inside database.WithTransaction at Serializable isolation:
// the balance check-and-update must not interleave with a concurrent post
// touching the same accounts.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/database"
	"github.com/aristath/stablesats/internal/pubsub"
)

// Ledger posts transactions and materializes balances for one or more
// journals backed by a single database.
type Ledger struct {
	db  *database.DB
	bus *pubsub.Bus
	log zerolog.Logger
}

// New creates a Ledger. Callers must call EnsureJournal/CreateAccount for
// every journal and account they intend to post against before the first
// Post call.
func New(db *database.DB, bus *pubsub.Bus, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, bus: bus, log: log.With().Str("component", "ledger").Logger()}
}

// BalanceTopic is the pubsub topic balance events for an account are
// published under.
func BalanceTopic(journal, accountCode string) pubsub.Topic {
	return pubsub.Topic(fmt.Sprintf("ledger.%s.%s", journal, accountCode))
}

// EnsureJournal idempotently creates a journal row.
func (l *Ledger) EnsureJournal(name string) error {
	id := deterministicID("journal:" + name)
	_, err := l.db.Exec(`INSERT INTO journals (id, name) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`, id, name)
	if err != nil {
		return fmt.Errorf("ensure journal %s: %w", name, err)
	}
	return nil
}

// CreateAccount idempotently creates an account. A second call with the same
// code is a no-op (ErrDuplicateAccountCode is swallowed).
func (l *Ledger) CreateAccount(a Account) error {
	if a.ID == "" {
		a.ID = deterministicID("account:" + a.Code)
	}
	_, err := l.db.Exec(`INSERT INTO accounts (id, code, name, normal_balance_type)
		VALUES (?, ?, ?, ?) ON CONFLICT(code) DO NOTHING`,
		a.ID, a.Code, a.Name, string(a.NormalBalanceType))
	if err != nil {
		return fmt.Errorf("create account %s: %w", a.Code, err)
	}
	return nil
}

// Post atomically posts a Transaction. If tx.TxID has already been posted,
// Post returns nil without touching any balance. The transaction must
// balance per (currency, layer) or Post returns ErrUnbalancedTransaction
// before opening a database transaction.
func (l *Ledger) Post(ctx context.Context, tx Transaction) error {
	if err := validateBalanced(tx.Entries); err != nil {
		return err
	}
	if tx.EffectiveDate.IsZero() {
		tx.EffectiveDate = time.Now().UTC()
	}

	var touched []BalanceUpdated
	err := database.WithTransaction(l.db.Conn(), func(sqlTx *sql.Tx) error {
		var exists int
		err := sqlTx.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE tx_id = ?`, tx.TxID).Scan(&exists)
		if err == nil {
			// Already posted: idempotent no-op.
			touched = nil
			return errAlreadyPosted
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check existing tx: %w", err)
		}

		metaJSON, err := json.Marshal(tx.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		journalID := deterministicID("journal:" + tx.Journal)
		_, err = sqlTx.ExecContext(ctx, `INSERT INTO transactions
			(tx_id, journal_id, template, effective_date, correlation_id, metadata_json, posted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tx.TxID, journalID, tx.Template, tx.EffectiveDate.Format(time.RFC3339), tx.CorrelationID,
			string(metaJSON), time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		for _, e := range tx.Entries {
			accountID := deterministicID("account:" + e.AccountCode)
			var dummy int
			if err := sqlTx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&dummy); err == sql.ErrNoRows {
				return fmt.Errorf("%w: %s", ErrAccountNotFound, e.AccountCode)
			} else if err != nil {
				return fmt.Errorf("lookup account %s: %w", e.AccountCode, err)
			}

			if _, err := sqlTx.ExecContext(ctx, `INSERT INTO entries
				(tx_id, account_id, currency, direction, layer, units) VALUES (?, ?, ?, ?, ?, ?)`,
				tx.TxID, accountID, e.Currency, string(e.Direction), string(e.Layer), e.Units.String()); err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}

			updated, err := applyBalanceDelta(ctx, sqlTx, accountID, e)
			if err != nil {
				return err
			}
			touched = append(touched, BalanceUpdated{
				TxID:          tx.TxID,
				AccountCode:   e.AccountCode,
				Currency:      e.Currency,
				Layer:         e.Layer,
				SettledDebit:  updated.debits,
				SettledCredit: updated.credits,
				Balance:       updated.balance(),
			})
		}
		return nil
	})

	if errors.Is(err, errAlreadyPosted) {
		l.log.Debug().Str("tx_id", tx.TxID).Msg("duplicate post ignored")
		return nil
	}
	if err != nil {
		return err
	}

	for _, ev := range touched {
		l.bus.Publish(BalanceTopic(tx.Journal, ev.AccountCode), ev)
	}
	return nil
}

var errAlreadyPosted = fmt.Errorf("ledger: already posted")

type balanceRow struct {
	debits, credits decimal.Decimal
}

func (b balanceRow) balance() decimal.Decimal { return b.credits.Sub(b.debits) }

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, accountID string, e Entry) (balanceRow, error) {
	var debitsStr, creditsStr string
	err := tx.QueryRowContext(ctx, `SELECT debits, credits FROM balances
		WHERE account_id = ? AND currency = ? AND layer = ?`, accountID, e.Currency, string(e.Layer)).
		Scan(&debitsStr, &creditsStr)

	debits := decimal.Zero
	credits := decimal.Zero
	if err == nil {
		debits, _ = decimal.NewFromString(debitsStr)
		credits, _ = decimal.NewFromString(creditsStr)
	} else if err != sql.ErrNoRows {
		return balanceRow{}, fmt.Errorf("load balance: %w", err)
	}

	if e.Direction == Debit {
		debits = debits.Add(e.Units)
	} else {
		credits = credits.Add(e.Units)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO balances (account_id, currency, layer, debits, credits)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, currency, layer) DO UPDATE SET debits = excluded.debits, credits = excluded.credits`,
		accountID, e.Currency, string(e.Layer), debits.String(), credits.String())
	if err != nil {
		return balanceRow{}, fmt.Errorf("upsert balance: %w", err)
	}
	return balanceRow{debits: debits, credits: credits}, nil
}

// GetBalance returns the current (debits, credits) for an account.
func (l *Ledger) GetBalance(accountCode, currency string, layer Layer) (debits, credits decimal.Decimal, err error) {
	accountID := deterministicID("account:" + accountCode)
	var debitsStr, creditsStr string
	dberr := l.db.QueryRow(`SELECT debits, credits FROM balances WHERE account_id = ? AND currency = ? AND layer = ?`,
		accountID, currency, string(layer)).Scan(&debitsStr, &creditsStr)
	if dberr == sql.ErrNoRows {
		return decimal.Zero, decimal.Zero, nil
	}
	if dberr != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("get balance: %w", dberr)
	}
	debits, _ = decimal.NewFromString(debitsStr)
	credits, _ = decimal.NewFromString(creditsStr)
	return debits, credits, nil
}

// validateBalanced checks that the signed sum of entries per
// (currency, layer) is zero.
func validateBalanced(entries []Entry) error {
	type key struct {
		currency string
		layer    Layer
	}
	sums := make(map[key]decimal.Decimal)
	for _, e := range entries {
		k := key{e.Currency, e.Layer}
		delta := e.Units
		if e.Direction == Debit {
			delta = delta.Neg()
		}
		sums[k] = sums[k].Add(delta)
	}
	for _, sum := range sums {
		if !sum.IsZero() {
			return ErrUnbalancedTransaction
		}
	}
	return nil
}
