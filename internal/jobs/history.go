package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stablesats/internal/database"
)

// HistoryKind distinguishes the two reconciliation read-models this
// supplements: completed exchange orders and completed exchange transfers.
type HistoryKind string

const (
	HistoryOrder    HistoryKind = "order"
	HistoryTransfer HistoryKind = "transfer"
)

// HistoryEntry mirrors a row of job_history: a point-in-time snapshot of an
// order or transfer's terminal state, kept after its reservation row is
// swept, for operator-facing reconciliation.
type HistoryEntry struct {
	ID         int64
	ClientID   string
	Kind       HistoryKind
	Action     string
	State      string
	Detail     json.RawMessage
	RecordedAt time.Time
}

// HistoryStore is the append-only reconciliation log for okex orders and
// transfers, queryable by operators long after the reservation rows that
// produced them have been swept.
type HistoryStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewHistoryStore wraps db.
func NewHistoryStore(db *database.DB, log zerolog.Logger) *HistoryStore {
	return &HistoryStore{db: db, log: log.With().Str("component", "jobs.history").Logger()}
}

// Record appends one terminal-state snapshot. detail is marshaled to JSON;
// pass nil for no extra detail.
func (s *HistoryStore) Record(ctx context.Context, clientID string, kind HistoryKind, action, state string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("marshal history detail for %s: %w", clientID, err)
		}
		detailJSON = b
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_history
		(client_id, kind, action, state, detail_json, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		clientID, string(kind), action, state, string(detailJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record history for %s: %w", clientID, err)
	}
	return nil
}

// ListByKind returns the most recent entries of kind, newest first, capped
// at limit.
func (s *HistoryStore) ListByKind(ctx context.Context, kind HistoryKind, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, client_id, kind, action, state, detail_json, recorded_at
		FROM job_history WHERE kind = ? ORDER BY id DESC LIMIT ?`, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list history for kind %s: %w", kind, err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

// ForClient returns every recorded entry for clientID, oldest first.
func (s *HistoryStore) ForClient(ctx context.Context, clientID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, client_id, kind, action, state, detail_json, recorded_at
		FROM job_history WHERE client_id = ? ORDER BY id ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list history for client %s: %w", clientID, err)
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

func scanHistoryRows(rows *sql.Rows) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var kind, detailJSON, recordedAt string
		if err := rows.Scan(&e.ID, &e.ClientID, &kind, &e.Action, &e.State, &detailJSON, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Kind = HistoryKind(kind)
		e.Detail = json.RawMessage(detailJSON)
		t, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		e.RecordedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}
