package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/exchange"
	"github.com/aristath/stablesats/internal/hedging"
	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
)

// handleAdjustHedge executes a previously-decided hedge action: reserve the
// instrument slot, place the order, and post the observed position delta to
// the ledger. Hedge orders are the only actions in this package that touch
// the ledger: they move the exchange's reported position, which is exactly
// what AdjustExchangePosition tracks.
func (e *Engine) handleAdjustHedge(ctx context.Context, job *jobs.Job) error {
	var payload AdjustHedgePayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("decode adjust_hedge payload: %w", err)
	}

	kind := hedging.HedgeActionKind(payload.Kind)
	if kind == hedging.HedgeDoNothing {
		return nil
	}

	preTrade, err := e.exchange.GetPositionInSignedUsdCents(ctx, e.cfg.InstrumentID)
	if err != nil {
		return fmt.Errorf("read pre-trade position: %w", err)
	}

	clientOrderID := job.ID
	action := "sell"
	if kind == hedging.HedgeBuy {
		action = "buy"
	}
	if kind == hedging.HedgeClosePosition {
		action = "close"
	}

	err = e.orderRes.TryReserve(ctx, jobs.OrderReservation{
		ClientOrderID: clientOrderID,
		CorrelationID: payload.CorrelationID,
		Instrument:    e.cfg.InstrumentID,
		Action:        action,
		Size:          payload.Contracts,
		Unit:          "contracts",
		TargetUsd:     decimal.Zero,
		PreTradeUsd:   preTrade.UsdCents,
	})
	if errors.Is(err, jobs.ErrNoSlot) {
		// Another hedge order is already in flight for this instrument;
		// the engine will re-evaluate on the next balance event or poll.
		return nil
	}
	if err != nil {
		return fmt.Errorf("reserve hedge order: %w", err)
	}

	if kind == hedging.HedgeClosePosition {
		if err := e.exchange.ClosePositions(ctx, clientOrderID); err != nil {
			return fmt.Errorf("close position: %w", err)
		}
	} else {
		side := exchange.SideSell
		if kind == hedging.HedgeBuy {
			side = exchange.SideBuy
		}
		if _, err := e.exchange.PlaceOrder(ctx, clientOrderID, side, uint32(payload.Contracts)); err != nil {
			return fmt.Errorf("place order: %w", err)
		}
	}

	details, err := e.exchange.OrderDetails(ctx, clientOrderID)
	if err != nil {
		return fmt.Errorf("read order details: %w", err)
	}
	if err := e.history.Record(ctx, clientOrderID, jobs.HistoryOrder, action, string(details.State), details); err != nil {
		e.log.Error().Err(err).Msg("record order history")
	}
	if !details.Complete {
		// Not yet filled: leave the reservation pending, a later poll
		// will observe the terminal state and complete it.
		return nil
	}
	if err := e.orderRes.Complete(ctx, clientOrderID); err != nil {
		e.log.Error().Err(err).Msg("complete order reservation")
	}

	postTrade, err := e.exchange.GetPositionInSignedUsdCents(ctx, e.cfg.InstrumentID)
	if err != nil {
		return fmt.Errorf("read post-trade position: %w", err)
	}
	delta := postTrade.UsdCents.Sub(preTrade.UsdCents)
	if delta.IsZero() {
		return nil
	}
	tx := ledger.AdjustExchangePosition(clientOrderID, payload.CorrelationID, ledger.AccountOkexPosition, delta)
	if err := e.ledger.Post(ctx, tx); err != nil {
		return fmt.Errorf("post exchange position adjustment: %w", err)
	}
	return nil
}

// handleAdjustFunding executes a previously-decided collateral-movement
// action: reserve the transfer slot, then carry out the matching exchange
// call. Funding actions move BTC custody between wallets the exchange
// already reports against its own balance endpoints; they don't change the
// user's USD liability or the exchange's USD position, so unlike hedge
// actions they post no ledger transaction.
func (e *Engine) handleAdjustFunding(ctx context.Context, job *jobs.Job) error {
	var payload AdjustFundingPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("decode adjust_funding payload: %w", err)
	}

	kind := hedging.FundingActionKind(payload.Kind)
	if kind == hedging.FundingDoNothing {
		return nil
	}
	amount, err := decimal.NewFromString(payload.AmountBtc)
	if err != nil {
		return fmt.Errorf("parse funding amount: %w", err)
	}

	clientID := job.ID

	if kind == hedging.FundingOnchainDeposit {
		// Deposits originate from an external actor; there is no
		// outbound exchange call to make, only a record that one is
		// expected so reconciliation can match the eventual on-chain
		// deposit against it.
		if err := e.history.Record(ctx, clientID, jobs.HistoryTransfer, string(kind), "pending", map[string]any{"amount_btc": amount.String()}); err != nil {
			e.log.Error().Err(err).Msg("record funding history")
		}
		return nil
	}

	fromWallet, toWallet := "trading", "funding"
	switch kind {
	case hedging.FundingTransferFundToTrading:
		fromWallet, toWallet = "funding", "trading"
	case hedging.FundingOnchainWithdraw:
		fromWallet, toWallet = "funding", "external"
	}

	err = e.transferRes.TryReserve(ctx, jobs.TransferReservation{
		ClientTransferID: clientID,
		CorrelationID:    payload.CorrelationID,
		Action:           string(kind),
		TransferType:     transferTypeFor(kind),
		Amount:           amount,
		FromWallet:       fromWallet,
		ToWallet:         toWallet,
	})
	if errors.Is(err, jobs.ErrNoSlot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reserve transfer: %w", err)
	}

	var state string
	switch kind {
	case hedging.FundingTransferTradingToFund:
		_, err = e.exchange.TransferTradingToFunding(ctx, clientID, amount)
		state = "ok"
	case hedging.FundingTransferFundToTrading:
		_, err = e.exchange.TransferFundingToTrading(ctx, clientID, amount)
		state = "ok"
	case hedging.FundingOnchainWithdraw:
		fees, feeErr := e.exchange.GetOnchainFees(ctx)
		if feeErr != nil {
			return fmt.Errorf("read onchain fees: %w", feeErr)
		}
		addr, addrErr := e.exchange.GetFundingDepositAddress(ctx)
		if addrErr != nil {
			return fmt.Errorf("read withdraw address: %w", addrErr)
		}
		_, err = e.exchange.WithdrawBtcOnchain(ctx, clientID, amount, fees.MinFee, addr)
		state = "pending"
	default:
		return fmt.Errorf("unhandled funding action kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("execute %s: %w", kind, err)
	}

	if err := e.history.Record(ctx, clientID, jobs.HistoryTransfer, string(kind), state, map[string]any{"amount_btc": amount.String()}); err != nil {
		e.log.Error().Err(err).Msg("record funding history")
	}
	if state == "ok" {
		if err := e.transferRes.Complete(ctx, clientID); err != nil {
			e.log.Error().Err(err).Msg("complete transfer reservation")
		}
	}
	return nil
}

func transferTypeFor(kind hedging.FundingActionKind) string {
	switch kind {
	case hedging.FundingTransferTradingToFund, hedging.FundingTransferFundToTrading:
		return "internal"
	default:
		return "external"
	}
}
