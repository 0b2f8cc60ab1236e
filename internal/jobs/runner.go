package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts and DefaultWarnRetries bound retry noise: up to five
// attempts, logged at WARN for the first three failures and ERROR after.
const (
	DefaultMaxAttempts   = 5
	DefaultWarnRetries   = 3
	DefaultMaxRetryDelay = 5 * time.Minute
	defaultPollInterval  = 500 * time.Millisecond
)

// Runner drives one worker goroutine per registered channel, polling Store
// for eligible jobs and dispatching them to the channel's Handler. One
// goroutine per channel is what makes "ordered" channels execute
// strictly one-at-a-time without any extra locking: there is never more
// than one in-flight claim per channel.
//
// Each channel runs one persistent ticker loop instead of sharing a FIFO
// queue, since each channel here already has dedicated
// capacity.
type Runner struct {
	store         *Store
	log           zerolog.Logger
	maxAttempts   int
	warnRetries   int
	maxRetryDelay time.Duration
	pollInterval  time.Duration

	mu       sync.Mutex
	handlers map[string]Handler

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRunner builds a Runner against store with the default retry policy.
func NewRunner(store *Store, log zerolog.Logger) *Runner {
	return &Runner{
		store:         store,
		log:           log.With().Str("component", "jobs.runner").Logger(),
		maxAttempts:   DefaultMaxAttempts,
		warnRetries:   DefaultWarnRetries,
		maxRetryDelay: DefaultMaxRetryDelay,
		pollInterval:  defaultPollInterval,
		handlers:      make(map[string]Handler),
		stop:          make(chan struct{}),
	}
}

// Register assigns a Handler to a channel. Must be called before Start.
func (r *Runner) Register(channel string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[channel] = h
}

// Start launches one worker goroutine per registered channel.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channel, handler := range r.handlers {
		r.wg.Add(1)
		go r.runChannel(ctx, channel, handler)
	}
}

// Stop signals every worker to exit and waits for them to finish their
// current job.
func (r *Runner) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Runner) runChannel(ctx context.Context, channel string, handler Handler) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.drainChannel(ctx, channel, handler)
		}
	}
}

// drainChannel claims and executes jobs on channel until none remain ready,
// so a burst of enqueued work doesn't wait a full poll interval per item.
func (r *Runner) drainChannel(ctx context.Context, channel string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		default:
		}

		job, err := r.store.ClaimNext(ctx, channel)
		if err != nil {
			r.log.Error().Err(err).Str("channel", channel).Msg("claim job failed")
			return
		}
		if job == nil {
			return
		}
		r.execute(ctx, job, handler)
	}
}

func (r *Runner) execute(ctx context.Context, job *Job, handler Handler) {
	log := r.log.With().Str("job_id", job.ID).Str("channel", job.Channel).Logger()

	err := handler(ctx, job)
	if err == nil {
		if doneErr := r.store.MarkDone(ctx, job.ID); doneErr != nil {
			log.Error().Err(doneErr).Msg("mark job done failed")
		}
		return
	}

	attempts, terminal, failErr := r.store.MarkFailed(ctx, job.ID, err.Error(), r.maxAttempts, int(r.maxRetryDelay.Seconds()))
	if failErr != nil {
		log.Error().Err(failErr).Msg("record job failure failed")
		return
	}
	event := log.Warn()
	if terminal || attempts > r.warnRetries {
		event = log.Error()
	}
	event.Err(err).Int("attempts", attempts).Bool("terminal", terminal).Msg("job execution failed")
}
