package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Passphrase string
	SecretKey  string
	Simulated  bool
}

// burnerAddress is returned by GetFundingDepositAddress in simulated mode.
const burnerAddress = "bc1qsimulatedburneraddressxxxxxxxxxxxxxxxxxx"

// Client is the OKEx-style exchange adapter consumed by the hedging/funding
// jobs and the engine orchestrator.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        zerolog.Logger
}

// New builds a Client. In simulated mode no network call is ever made; every
// method returns deterministic, internally-consistent canned data so the
// rest of the system can be developed and tested against a live-shaped API.
func New(cfg Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    NewRateLimiter(),
		log:        log.With().Str("component", "exchange").Logger(),
	}
}

// do performs a signed request against path, honoring the per-endpoint rate
// limiter. body may be nil for GET requests.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Acquire(ctx, path); err != nil {
		return fmt.Errorf("exchange: rate limit wait: %w", err)
	}

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("exchange: marshal request body: %w", err)
		}
		bodyBytes = b
	}

	timestamp := isoTimestampMs(time.Now())
	signature := sign(c.cfg.SecretKey, timestamp, method, path, string(bodyBytes))

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("exchange: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	if c.cfg.Simulated {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchange: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("exchange: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("exchange: unmarshal response: %w", err)
		}
	}
	return nil
}

// TransportError wraps a non-2xx exchange HTTP response. Transport
// failures are retryable; the job framework backs off and tries again.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("exchange: transport error, status=%d body=%s", e.StatusCode, e.Body)
}

// GetLastPriceInUsdCents returns the exchange's last traded price.
func (c *Client) GetLastPriceInUsdCents(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.Simulated {
		return decimal.RequireFromString("10000000"), nil
	}
	var out struct {
		UsdCents decimal.Decimal `json:"usd_cents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/ticker", nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.UsdCents, nil
}

// FundingAccountBalance returns the funding (non-trading) BTC balance.
func (c *Client) FundingAccountBalance(ctx context.Context) (Balance, error) {
	if c.cfg.Simulated {
		return Balance{FreeBTC: decimal.Zero, UsedBTC: decimal.Zero, TotalBTC: decimal.Zero}, nil
	}
	var out Balance
	err := c.do(ctx, http.MethodGet, "/api/v5/asset/balances", nil, &out)
	return out, err
}

// TradingAccountBalance returns the margin/trading BTC balance.
func (c *Client) TradingAccountBalance(ctx context.Context) (Balance, error) {
	if c.cfg.Simulated {
		return Balance{FreeBTC: decimal.Zero, UsedBTC: decimal.Zero, TotalBTC: decimal.Zero}, nil
	}
	var out Balance
	err := c.do(ctx, http.MethodGet, "/api/v5/account/balance", nil, &out)
	return out, err
}

// GetPositionInSignedUsdCents returns the current OKEx position, signed by
// direction.
func (c *Client) GetPositionInSignedUsdCents(ctx context.Context, instrumentID string) (Position, error) {
	if c.cfg.Simulated {
		return Position{InstrumentID: instrumentID}, nil
	}
	var out Position
	err := c.do(ctx, http.MethodGet, "/api/v5/account/positions", nil, &out)
	return out, err
}

// TransferFundingToTrading moves amountBTC from the funding to the trading
// account, idempotent on clientID.
func (c *Client) TransferFundingToTrading(ctx context.Context, clientID string, amountBTC decimal.Decimal) (string, error) {
	return c.transfer(ctx, clientID, amountBTC, "6", "18")
}

// TransferTradingToFunding moves amountBTC the other way.
func (c *Client) TransferTradingToFunding(ctx context.Context, clientID string, amountBTC decimal.Decimal) (string, error) {
	return c.transfer(ctx, clientID, amountBTC, "18", "6")
}

func (c *Client) transfer(ctx context.Context, clientID string, amountBTC decimal.Decimal, from, to string) (string, error) {
	if c.cfg.Simulated {
		return "sim-transfer-" + clientID, nil
	}
	body := map[string]any{"clientId": clientID, "amt": amountBTC.String(), "ccy": "BTC", "from": from, "to": to}
	var out struct {
		TransferID string `json:"transId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v5/asset/transfer", body, &out)
	return out.TransferID, err
}

// WithdrawBtcOnchain withdraws amountBTC minus feeBTC to destAddress,
// idempotent on clientID.
func (c *Client) WithdrawBtcOnchain(ctx context.Context, clientID string, amountBTC, feeBTC decimal.Decimal, destAddress string) (string, error) {
	if c.cfg.Simulated {
		return "sim-withdraw-" + clientID, nil
	}
	body := map[string]any{
		"clientId": clientID, "amt": amountBTC.String(), "fee": feeBTC.String(),
		"toAddr": destAddress, "ccy": "BTC",
	}
	var out struct {
		WithdrawID string `json:"wdId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v5/asset/withdrawal", body, &out)
	return out.WithdrawID, err
}

// GetFundingDepositAddress returns the deposit address for this account.
// In simulated mode it returns a well-known burner address.
func (c *Client) GetFundingDepositAddress(ctx context.Context) (string, error) {
	if c.cfg.Simulated {
		return burnerAddress, nil
	}
	var out struct {
		Address string `json:"addr"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v5/asset/deposit-address", nil, &out)
	return out.Address, err
}

// PlaceOrder opens a position, idempotent on clientOrderID.
func (c *Client) PlaceOrder(ctx context.Context, clientOrderID string, side OrderSide, contracts uint32) (string, error) {
	if c.cfg.Simulated {
		return "sim-order-" + clientOrderID, nil
	}
	body := map[string]any{"clOrdId": clientOrderID, "side": side, "sz": contracts}
	var out struct {
		OrderID string `json:"ordId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", body, &out)
	return out.OrderID, err
}

// ClosePositions closes all positions for clientOrderID. A "position does
// not exist" response from the exchange maps to success.
func (c *Client) ClosePositions(ctx context.Context, clientOrderID string) error {
	if c.cfg.Simulated {
		return nil
	}
	body := map[string]any{"clOrdId": clientOrderID}
	err := c.do(ctx, http.MethodPost, "/api/v5/trade/close-position", body, nil)
	if terr, ok := err.(*TransportError); ok && terr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// OrderDetails reports the current state of a placed order.
func (c *Client) OrderDetails(ctx context.Context, clientOrderID string) (OrderDetails, error) {
	if c.cfg.Simulated {
		return OrderDetails{State: OrderFilled, Complete: true}, nil
	}
	var out OrderDetails
	err := c.do(ctx, http.MethodGet, "/api/v5/trade/order?clOrdId="+clientOrderID, nil, &out)
	return out, err
}

// TransferState reports the current state of a transfer.
func (c *Client) TransferState(ctx context.Context, transferOrClientID string) (TransferStatus, error) {
	if c.cfg.Simulated {
		return TransferStatus{State: TransferOK, TransferID: transferOrClientID}, nil
	}
	var out TransferStatus
	err := c.do(ctx, http.MethodGet, "/api/v5/asset/transfer-state?transId="+transferOrClientID, nil, &out)
	return out, err
}

// FetchWithdrawalByClientID reports the current state of a withdrawal.
func (c *Client) FetchWithdrawalByClientID(ctx context.Context, clientID string) (WithdrawalStatus, error) {
	if c.cfg.Simulated {
		return WithdrawalStatus{State: WithdrawalSuccess, TransactionID: uuid.NewString()}, nil
	}
	var out WithdrawalStatus
	err := c.do(ctx, http.MethodGet, "/api/v5/asset/withdrawal-history?clientId="+clientID, nil, &out)
	return out, err
}

// GetOnchainFees returns the exchange's current fee schedule, clamped to
// the configured minimums.
func (c *Client) GetOnchainFees(ctx context.Context) (OnchainFees, error) {
	var fees OnchainFees
	if c.cfg.Simulated {
		fees = OnchainFees{MinFee: MinFeeBTC, MaxFee: decimal.RequireFromString("0.001"), MinWithdraw: MinWithdrawBTC, MaxWithdraw: decimal.RequireFromString("10")}
	} else {
		if err := c.do(ctx, http.MethodGet, "/api/v5/asset/withdrawal-fee?ccy=BTC", nil, &fees); err != nil {
			return OnchainFees{}, err
		}
	}
	if fees.MinFee.LessThan(MinFeeBTC) {
		fees.MinFee = MinFeeBTC
	}
	if fees.MinWithdraw.LessThan(MinWithdrawBTC) {
		fees.MinWithdraw = MinWithdrawBTC
	}
	return fees, nil
}
