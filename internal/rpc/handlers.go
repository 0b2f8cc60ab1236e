package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/ledger"
	"github.com/aristath/stablesats/internal/money"
	"github.com/aristath/stablesats/internal/price"
	"github.com/aristath/stablesats/internal/quote"
)

type tradeDirection int

const (
	directionBuy tradeDirection = iota
	directionSell
)

type amountUnit int

const (
	unitSats amountUnit = iota
	unitCents
)

type convertRequest struct {
	AmountInSats  *int64 `json:"amount_in_sats,omitempty"`
	AmountInCents *int64 `json:"amount_in_cents,omitempty"`
}

type convertResponse struct {
	AmountInSats  int64 `json:"amount_in_sats,omitempty"`
	AmountInCents int64 `json:"amount_in_cents,omitempty"`
}

// handleConvert answers one of the eight {buy,sell}x{immediate,delayed}x
// {sats,cents} conversions. unit names which field of the
// request is populated and which direction the conversion runs.
func (s *Server) handleConvert(dir tradeDirection, unit amountUnit, immediate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req convertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var resp convertResponse
		var err error
		switch unit {
		case unitSats:
			if req.AmountInSats == nil {
				writeError(w, http.StatusBadRequest, errors.New("rpc: amount_in_sats required"))
				return
			}
			sats := money.NewSatoshis(*req.AmountInSats)
			var cents money.UsdCents
			if dir == directionBuy {
				cents, err = s.price.CentsFromSatsForBuy(sats, immediate)
			} else {
				cents, err = s.price.CentsFromSatsForSell(sats, immediate)
			}
			resp.AmountInCents = cents.Floor()
		case unitCents:
			if req.AmountInCents == nil {
				writeError(w, http.StatusBadRequest, errors.New("rpc: amount_in_cents required"))
				return
			}
			cents := money.NewUsdCents(*req.AmountInCents)
			var sats money.Satoshis
			if dir == directionBuy {
				sats, err = s.price.SatsFromCentsForBuy(cents, immediate)
			} else {
				sats, err = s.price.SatsFromCentsForSell(cents, immediate)
			}
			resp.AmountInSats = sats.Ceil()
		}
		if err != nil {
			writeConversionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type midRateResponse struct {
	Ratio string `json:"ratio"`
}

func (s *Server) handleMidRate(w http.ResponseWriter, r *http.Request) {
	ratio, err := s.price.MidPrice()
	if err != nil {
		writeConversionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, midRateResponse{Ratio: ratio})
}

// handleMixedMidRate reports the exchange-weighted mid price rather than
// the single order-book mid price handleMidRate
// reports. With one exchange adapter wired today it reduces to that
// exchange's tick-derived mid, but it exercises the same weighted-average
// path a second exchange would join.
func (s *Server) handleMixedMidRate(w http.ResponseWriter, r *http.Request) {
	if s.mixer == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("rpc: price mixer not configured"))
		return
	}
	mixed, err := s.mixer.Apply(func(mid decimal.Decimal) decimal.Decimal { return mid })
	if err != nil {
		writeConversionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, midRateResponse{Ratio: mixed.String()})
}

type quoteRequest struct {
	AmountInSats       *int64 `json:"amount_in_sats,omitempty"`
	AmountInCents      *int64 `json:"amount_in_cents,omitempty"`
	ImmediateExecution bool   `json:"immediate_execution"`
	CorrelationID      string `json:"correlation_id"`
}

type quoteResponse struct {
	ID         string    `json:"id"`
	SatAmount  int64     `json:"sat_amount"`
	CentAmount int64     `json:"cent_amount"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// handleGetQuote implements GetQuoteToBuyUsd/GetQuoteToSellUsd. The sat
// amount is the fixed leg and is priced against the current book. Only
// amount_in_sats is read: amount_in_cents is ignored, and a request
// without amount_in_sats is rejected with 400.
func (s *Server) handleGetQuote(dir quote.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.AmountInSats == nil {
			writeError(w, http.StatusBadRequest, errors.New("rpc: amount_in_sats required"))
			return
		}

		sats := money.NewSatoshis(*req.AmountInSats)
		q, err := s.quotes.Issue(dir, req.ImmediateExecution, sats, req.CorrelationID, time.Now())
		if err != nil {
			writeConversionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quoteResponse{
			ID:         q.ID,
			SatAmount:  q.SatAmount.Decimal().IntPart(),
			CentAmount: q.CentAmount.Decimal().IntPart(),
			ExpiresAt:  q.ExpiresAt,
		})
	}
}

type acceptQuoteRequest struct {
	QuoteID string `json:"quote_id"`
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	var req acceptQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.quotes.Accept(r.Context(), req.QuoteID, time.Now()); err != nil {
		switch {
		case errors.Is(err, quote.ErrQuoteExpired):
			writeError(w, http.StatusPreconditionFailed, err)
		case errors.Is(err, quote.ErrQuoteNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, quote.ErrQuoteAlreadyAccepted):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status            string `json:"status"`
	PriceFeedHealthy  bool   `json:"price_feed_healthy"`
	LedgerSubscribers int    `json:"ledger_subscribers"`
}

// handleHealth reports the liveness checks: whether a cached book with
// both sides is available to price a quote (its age is not checked), and
// how many listeners the balance subscriptions the engine depends on have.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, priceErr := s.price.MidPrice()
	resp := healthResponse{
		Status:           "ok",
		PriceFeedHealthy: priceErr == nil,
	}
	if s.bus != nil {
		resp.LedgerSubscribers = s.bus.SubscriberCount(ledger.BalanceTopic(ledger.JournalStablesats, ledger.AccountUserLiability)) +
			s.bus.SubscriberCount(ledger.BalanceTopic(ledger.JournalExchangePosition, ledger.AccountOkexPosition))
	}
	if priceErr != nil {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeConversionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, price.ErrNoPriceAvailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, price.ErrEmptyBook):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		var stale *price.StalePriceError
		if errors.As(err, &stale) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
