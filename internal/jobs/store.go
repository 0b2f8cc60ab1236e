package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stablesats/internal/database"
)

// Store persists Job rows and implements the claim/retry state machine.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore wraps db.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "jobs").Logger()}
}

// Enqueue inserts a new job keyed by id. Re-enqueuing an id that already
// exists is a no-op; created reports whether a new
// row was actually inserted.
func (s *Store) Enqueue(ctx context.Context, id, channel string, ordered bool, payload []byte, runAt time.Time) (created bool, err error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO jobs
		(id, channel, ordered, payload, run_at, status, attempts, next_wait_secs, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, 1, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, channel, boolToInt(ordered), payload, runAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("enqueue job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue job %s: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// ClaimNext atomically claims the next eligible job on channel and marks it
// running. It returns (nil, nil) when nothing is eligible: either the
// channel is empty, or channel's jobs are ordered and one is already
// running. Within one ordered channel, jobs execute strictly one at a time
// in enqueue order.
func (s *Store) ClaimNext(ctx context.Context, channel string) (*Job, error) {
	var job *Job
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		if running, err := channelHasRunningOrderedJob(ctx, tx, channel); err != nil {
			return err
		} else if running {
			return nil
		}

		row := tx.QueryRowContext(ctx, `SELECT id, channel, ordered, payload, run_at, status,
			attempts, next_wait_secs, last_error, checkpoint, created_at
			FROM jobs WHERE channel = ? AND status = 'pending' AND run_at <= ?
			ORDER BY run_at ASC LIMIT 1`,
			channel, time.Now().UTC().Format(time.RFC3339))

		j, err := scanJob(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim next job on %s: %w", channel, err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'running' WHERE id = ?`, j.ID); err != nil {
			return fmt.Errorf("mark job %s running: %w", j.ID, err)
		}
		j.Status = StatusRunning
		job = j
		return nil
	})
	return job, err
}

func channelHasRunningOrderedJob(ctx context.Context, tx *sql.Tx, channel string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs
		WHERE channel = ? AND status = 'running' AND ordered = 1`, channel).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check running ordered jobs on %s: %w", channel, err)
	}
	return n > 0, nil
}

// MarkDone marks a running job complete.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = 'done' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark job %s done: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed execution attempt and applies the exponential
// backoff policy: wait = min(maxRetryDelay,
// 2*prevWait), terminal once attempts reaches maxAttempts. It returns the
// resulting attempt count and whether the job is now terminally failed, so
// the caller can log at WARN (attempts <= warnRetries) or ERROR.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string, maxAttempts, maxRetryDelaySecs int) (attempts int, terminal bool, err error) {
	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var prevWait int
		if scanErr := tx.QueryRowContext(ctx, `SELECT attempts, next_wait_secs FROM jobs WHERE id = ?`, id).
			Scan(&attempts, &prevWait); scanErr != nil {
			return fmt.Errorf("load job %s: %w", id, scanErr)
		}
		attempts++
		terminal = attempts >= maxAttempts

		nextWait := prevWait * 2
		if nextWait > maxRetryDelaySecs {
			nextWait = maxRetryDelaySecs
		}
		if nextWait < 1 {
			nextWait = 1
		}

		status := string(StatusPending)
		runAt := time.Now().UTC().Add(time.Duration(nextWait) * time.Second)
		if terminal {
			status = string(StatusFailed)
			runAt = time.Now().UTC()
		}

		_, execErr := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, attempts = ?, next_wait_secs = ?,
			last_error = ?, run_at = ? WHERE id = ?`,
			status, attempts, nextWait, errMsg, runAt.Format(time.RFC3339), id)
		if execErr != nil {
			return fmt.Errorf("record failure for job %s: %w", id, execErr)
		}
		return nil
	})
	return attempts, terminal, err
}

// Checkpoint persists partial progress for a running job without changing
// its status.
func (s *Store) Checkpoint(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET checkpoint = ? WHERE id = ?`, data, id)
	if err != nil {
		return fmt.Errorf("checkpoint job %s: %w", id, err)
	}
	return nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, channel, ordered, payload, run_at, status,
		attempts, next_wait_secs, last_error, checkpoint, created_at FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var ordered int
	var runAt, createdAt string
	var lastError sql.NullString
	var checkpoint []byte
	if err := row.Scan(&j.ID, &j.Channel, &ordered, &j.Payload, &runAt, &j.Status,
		&j.Attempts, &j.NextWaitSecs, &lastError, &checkpoint, &createdAt); err != nil {
		return nil, err
	}
	j.Ordered = ordered != 0
	j.LastError = lastError.String
	j.Checkpoint = checkpoint

	t, err := time.Parse(time.RFC3339, runAt)
	if err != nil {
		return nil, fmt.Errorf("parse run_at: %w", err)
	}
	j.RunAt = t
	c, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	j.CreatedAt = c
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
