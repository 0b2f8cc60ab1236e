// Package engine implements the orchestrator: it wires the
// exchange client, the ledger, the pure hedge/funding decision functions,
// the price stream, and the job runner's reservation stores into the
// long-lived background tasks that keep the exchange hedge and its funding
// in line with the observed user liability.
//
// One struct holds every collaborator, constructed once at startup; each
// subscription runs as its own long-lived goroutine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/stablesats/internal/exchange"
	"github.com/aristath/stablesats/internal/hedging"
	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/pubsub"
)

// Job channels. All three are ordered, so jobs execute strictly one at a time
// in enqueue order, which also gives at most one hedge job and one funding
// job in flight; the reservation tables further enforce that at the
// exchange level.
const (
	ChannelAdjustHedge   = "hedging.okex/adjust_hedge"
	ChannelAdjustFunding = "hedging.okex/adjust_funding"
	ChannelPoll          = "hedging.okex/poll"
)

const priceWatchInterval = 2 * time.Second

// Config holds the orchestrator's tunables.
type Config struct {
	InstrumentID      string
	PollFrequency     time.Duration
	HedgeThresholds   hedging.HedgeThresholds
	FundingThresholds hedging.FundingThresholds
}

// Engine is the running orchestrator.
type Engine struct {
	cfg Config

	exchange    *exchange.Client
	ledger      *ledger.Ledger
	tickCache   *price.TickCache
	bus         *pubsub.Bus
	jobStore    *jobs.Store
	runner      *jobs.Runner
	orderRes    *jobs.OrderReservationStore
	transferRes *jobs.TransferReservationStore
	history     *jobs.HistoryStore
	log         zerolog.Logger
}

// New wires every collaborator the orchestrator needs. Call Start to launch
// its background tasks.
func New(
	cfg Config,
	exch *exchange.Client,
	ldg *ledger.Ledger,
	tickCache *price.TickCache,
	bus *pubsub.Bus,
	jobStore *jobs.Store,
	orderRes *jobs.OrderReservationStore,
	transferRes *jobs.TransferReservationStore,
	history *jobs.HistoryStore,
	log zerolog.Logger,
) *Engine {
	e := &Engine{
		cfg:         cfg,
		exchange:    exch,
		ledger:      ldg,
		tickCache:   tickCache,
		bus:         bus,
		jobStore:    jobStore,
		orderRes:    orderRes,
		transferRes: transferRes,
		history:     history,
		log:         log.With().Str("component", "engine").Logger(),
	}
	e.runner = jobs.NewRunner(jobStore, log)
	e.runner.Register(ChannelAdjustHedge, e.handleAdjustHedge)
	e.runner.Register(ChannelAdjustFunding, e.handleAdjustFunding)
	e.runner.Register(ChannelPoll, e.handlePoll)
	return e
}

// Start runs the startup sequence: verify account configuration,
// then launch the price-watch, ledger-balance-watch, and poller background
// tasks, then start the job runner's workers. It returns once every task has
// been launched; the tasks themselves run until ctx is canceled.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.verifyAccountConfiguration(ctx); err != nil {
		return fmt.Errorf("engine: verify account configuration: %w", err)
	}

	go e.watchPriceStream(ctx)
	go e.watchLedgerBalance(ctx, ledger.BalanceTopic(ledger.JournalStablesats, ledger.AccountUserLiability))
	go e.watchLedgerBalance(ctx, ledger.BalanceTopic(ledger.JournalExchangePosition, ledger.AccountOkexPosition))
	go e.poller(ctx)

	e.runner.Start(ctx)
	return nil
}

// Stop drains the job runner's workers.
func (e *Engine) Stop() {
	e.runner.Stop()
}

// verifyAccountConfiguration performs a lightweight connectivity check
// against the exchange account. The adapter doesn't
// expose position-mode/leverage introspection endpoints, so this checks
// reachability via an endpoint every account supports; a failure here means
// the orchestrator should not start its subscriptions at all.
func (e *Engine) verifyAccountConfiguration(ctx context.Context) error {
	if _, err := e.exchange.GetPositionInSignedUsdCents(ctx, e.cfg.InstrumentID); err != nil {
		return err
	}
	return nil
}

// watchPriceStream polls the shared tick cache and, on each new tick,
// triggers conditionallySpawnAdjustFunding. The price
// package's cache is updated out-of-band by the exchange's order-book feed;
// polling it here plays the role of "subscribe to the price stream" without
// requiring the feed itself to speak pubsub.
func (e *Engine) watchPriceStream(ctx context.Context) {
	ticker := time.NewTicker(priceWatchInterval)
	defer ticker.Stop()

	var lastSeen time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, err := e.tickCache.Latest(time.Now())
			if err != nil {
				continue
			}
			if !tick.Timestamp.After(lastSeen) {
				continue
			}
			lastSeen = tick.Timestamp
			e.conditionallySpawnAdjustFunding(ctx, tick.CorrelationID)
		}
	}
}

// watchLedgerBalance subscribes to topic and, for every balance event,
// triggers both conditional spawns with the originating entry's correlation
// id. Lag events are skipped; the next balance read reconciles.
func (e *Engine) watchLedgerBalance(ctx context.Context, topic pubsub.Topic) {
	ch, cancel := e.bus.Subscribe(topic)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m, ok := msg.(pubsub.Message)
			if !ok {
				continue // Lag: reconcile by re-reading balances, nothing to do here.
			}
			ev, ok := m.Data.(ledger.BalanceUpdated)
			if !ok {
				continue
			}
			e.conditionallySpawnAdjustHedge(ctx, ev.TxID)
			e.conditionallySpawnAdjustFunding(ctx, ev.TxID)
		}
	}
}

// poller re-enqueues poll_okex at cfg.PollFrequency.
func (e *Engine) poller(ctx context.Context) {
	interval := e.cfg.PollFrequency
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := jobs.EncodePayload(uuid.NewString())
			if err != nil {
				e.log.Error().Err(err).Msg("encode poll_okex payload")
				continue
			}
			if _, err := e.jobStore.Enqueue(ctx, "poll_okex-"+uuid.NewString(), ChannelPoll, true, payload, time.Now()); err != nil {
				e.log.Error().Err(err).Msg("enqueue poll_okex")
			}
		}
	}
}

func (e *Engine) handlePoll(ctx context.Context, job *jobs.Job) error {
	e.resolvePendingReservations(ctx)
	corrID := uuid.NewString()
	e.conditionallySpawnAdjustHedge(ctx, corrID)
	e.conditionallySpawnAdjustFunding(ctx, corrID)
	return nil
}

// resolvePendingReservations re-queries the exchange for every reservation
// still marked pending, completes the ones the exchange has settled, and
// sweeps the ones that have gone unacknowledged too long so their slot
// frees up. Exchange errors here are transient by assumption; the row just
// stays pending until the next poll.
func (e *Engine) resolvePendingReservations(ctx context.Context) {
	orders, err := e.orderRes.ListPending(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("list pending order reservations")
	}
	for _, r := range orders {
		details, err := e.exchange.OrderDetails(ctx, r.ClientOrderID)
		if err != nil {
			continue
		}
		if !details.Complete {
			continue
		}
		if err := e.orderRes.Complete(ctx, r.ClientOrderID); err != nil {
			e.log.Error().Err(err).Str("client_order_id", r.ClientOrderID).Msg("complete order reservation")
			continue
		}
		if err := e.history.Record(ctx, r.ClientOrderID, jobs.HistoryOrder, r.Action, string(details.State), details); err != nil {
			e.log.Error().Err(err).Msg("record order history")
		}
	}

	transfers, err := e.transferRes.ListPending(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("list pending transfer reservations")
	}
	for _, r := range transfers {
		settled := false
		state := ""
		if r.TransferType == "internal" {
			st, err := e.exchange.TransferState(ctx, r.ClientTransferID)
			if err != nil {
				continue
			}
			settled = st.State == exchange.TransferOK
			state = string(st.State)
		} else {
			wd, err := e.exchange.FetchWithdrawalByClientID(ctx, r.ClientTransferID)
			if err != nil {
				continue
			}
			settled = wd.State == exchange.WithdrawalSuccess
			state = string(wd.State)
		}
		if !settled {
			continue
		}
		if err := e.transferRes.Complete(ctx, r.ClientTransferID); err != nil {
			e.log.Error().Err(err).Str("client_transfer_id", r.ClientTransferID).Msg("complete transfer reservation")
			continue
		}
		if err := e.history.Record(ctx, r.ClientTransferID, jobs.HistoryTransfer, r.Action, state, nil); err != nil {
			e.log.Error().Err(err).Msg("record transfer history")
		}
	}

	if _, err := e.orderRes.SweepLost(ctx); err != nil {
		e.log.Error().Err(err).Msg("sweep lost order reservations")
	}
	if _, err := e.transferRes.SweepLost(ctx); err != nil {
		e.log.Error().Err(err).Msg("sweep lost transfer reservations")
	}
}

// conditionallySpawnAdjustHedge computes the hedge decision for the current
// observed state and enqueues ChannelAdjustHedge iff action is required
// (a DoNothing decision never enqueues a job).
func (e *Engine) conditionallySpawnAdjustHedge(ctx context.Context, correlationID string) {
	debits, credits, err := e.ledger.GetBalance(ledger.AccountUserLiability, "USD", ledger.Settled)
	if err != nil {
		e.log.Error().Err(err).Msg("read user liability balance")
		return
	}
	absLiabilityCents := credits.Sub(debits).Abs()

	position, err := e.exchange.GetPositionInSignedUsdCents(ctx, e.cfg.InstrumentID)
	if err != nil {
		e.log.Error().Err(err).Msg("read exchange position")
		return
	}

	action := hedging.OkexHedgeAdjustment(absLiabilityCents, position.UsdCents, e.cfg.HedgeThresholds)
	if action.Kind == hedging.HedgeDoNothing {
		return
	}

	payload, err := jobs.EncodePayload(AdjustHedgePayload{
		CorrelationID: correlationID, Kind: string(action.Kind), Contracts: action.Contracts,
	})
	if err != nil {
		e.log.Error().Err(err).Msg("encode adjust_hedge payload")
		return
	}
	if _, err := e.jobStore.Enqueue(ctx, "adjust_hedge-"+uuid.NewString(), ChannelAdjustHedge, true, payload, time.Now()); err != nil {
		e.log.Error().Err(err).Msg("enqueue adjust_hedge")
	}
}

// conditionallySpawnAdjustFunding is the funding-decision analog.
func (e *Engine) conditionallySpawnAdjustFunding(ctx context.Context, correlationID string) {
	debits, credits, err := e.ledger.GetBalance(ledger.AccountUserLiability, "USD", ledger.Settled)
	if err != nil {
		e.log.Error().Err(err).Msg("read user liability balance")
		return
	}
	absLiabilityCents := credits.Sub(debits).Abs()

	position, err := e.exchange.GetPositionInSignedUsdCents(ctx, e.cfg.InstrumentID)
	if err != nil {
		e.log.Error().Err(err).Msg("read exchange position")
		return
	}
	trading, err := e.exchange.TradingAccountBalance(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("read trading account balance")
		return
	}
	funding, err := e.exchange.FundingAccountBalance(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("read funding account balance")
		return
	}
	btcPriceCents, err := e.exchange.GetLastPriceInUsdCents(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("read last price")
		return
	}

	action := hedging.OkexFundingAdjustment(
		absLiabilityCents, position.UsdCents, trading.TotalBTC, btcPriceCents, funding.TotalBTC,
		e.cfg.FundingThresholds,
	)
	if action.Kind == hedging.FundingDoNothing {
		return
	}

	payload, err := jobs.EncodePayload(AdjustFundingPayload{
		CorrelationID: correlationID, Kind: string(action.Kind), AmountBtc: action.AmountBtc.String(),
	})
	if err != nil {
		e.log.Error().Err(err).Msg("encode adjust_funding payload")
		return
	}
	if _, err := e.jobStore.Enqueue(ctx, "adjust_funding-"+uuid.NewString(), ChannelAdjustFunding, true, payload, time.Now()); err != nil {
		e.log.Error().Err(err).Msg("enqueue adjust_funding")
	}
}
