package quote

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/stablesats/internal/database"
)

// eventRecord is the wire shape persisted in quote_events.event_data.
type eventRecord struct {
	Type     EventType
	At       time.Time
	Init     *InitializedPayload
	Accepted *AcceptedPayload
}

// Store persists and rebuilds quote entities from the quote_events table,
// keyed by (entity_id, sequence).
type Store struct {
	db *database.DB
}

// NewStore wraps a database connection as a quote Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save writes every pending (unpersisted) event for q. Already-issued
// quotes calling Save again only write events newer than what's on disk.
func (s *Store) Save(q *Quote) error {
	if len(q.pendingEvents) == 0 {
		return nil
	}
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		for _, ev := range q.pendingEvents {
			rec := eventRecord{Type: ev.Type, At: ev.At, Init: ev.Init, Accepted: ev.Accepted}
			blob, err := msgpack.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal quote event: %w", err)
			}
			if _, err := tx.Exec(`INSERT INTO quote_events (entity_id, sequence, event_type, event_data)
				VALUES (?, ?, ?, ?)`, q.ID, ev.Sequence, string(ev.Type), blob); err != nil {
				return fmt.Errorf("insert quote event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	q.pendingEvents = nil
	return nil
}

// Load rebuilds a Quote by folding every persisted event in sequence order.
// Returns ErrQuoteNotFound if entityID has no events.
func (s *Store) Load(entityID string) (*Quote, error) {
	rows, err := s.db.Query(`SELECT sequence, event_type, event_data FROM quote_events
		WHERE entity_id = ? ORDER BY sequence ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query quote events: %w", err)
	}
	defer rows.Close()

	q := &Quote{ID: entityID}
	found := false
	for rows.Next() {
		var seq uint64
		var evType string
		var blob []byte
		if err := rows.Scan(&seq, &evType, &blob); err != nil {
			return nil, fmt.Errorf("scan quote event: %w", err)
		}
		var rec eventRecord
		if err := msgpack.Unmarshal(blob, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal quote event: %w", err)
		}
		q.applyEvent(Event{Sequence: seq, Type: EventType(evType), At: rec.At, Init: rec.Init, Accepted: rec.Accepted})
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrQuoteNotFound
	}
	return q, nil
}
