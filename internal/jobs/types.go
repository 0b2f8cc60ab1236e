// Package jobs implements the persistent job queue and at-most-one-pending
// reservation tables: named ordered channels, exponential backoff retries,
// idempotent enqueue by id, and checkpointing. State lives in the
// jobs/job_history/order_reservations/transfer_reservations tables so a
// restart resumes where the previous process left off.
package jobs

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Status is the lifecycle state of a persisted Job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job mirrors a row of the jobs table.
type Job struct {
	ID           string
	Channel      string
	Ordered      bool
	Payload      []byte
	RunAt        time.Time
	Status       Status
	Attempts     int
	NextWaitSecs int
	LastError    string
	Checkpoint   []byte
	CreatedAt    time.Time
}

// Decode unmarshals the job's msgpack-encoded payload into v.
func (j *Job) Decode(v any) error {
	return msgpack.Unmarshal(j.Payload, v)
}

// EncodePayload msgpack-encodes v for use as a Job's Payload.
func EncodePayload(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Handler executes one Job. A returned error triggers the retry/backoff
// policy; a nil error marks the job done.
type Handler func(ctx context.Context, job *Job) error
