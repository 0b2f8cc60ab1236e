package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/stablesats/internal/ledger"
)

// GaloyClient is the HTTP implementation of GaloyTransactionSource: it
// pages through the wallet-ledger system's settled-transactions endpoint,
// newest window last, handing each page to GaloyPoller.
type GaloyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGaloyClient points a client at the wallet-ledger's base URL. apiKey
// may be empty when the endpoint is unauthenticated (local development).
func NewGaloyClient(baseURL, apiKey string) *GaloyClient {
	return &GaloyClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// galoyTransactionsPage mirrors the endpoint's response envelope.
type galoyTransactionsPage struct {
	Transactions []struct {
		ID         string `json:"id"`
		Direction  string `json:"direction"` // credit, debit
		SatAmount  string `json:"sat_amount"`
		CentAmount string `json:"cent_amount"`
	} `json:"transactions"`
	NextCursor string `json:"next_cursor"`
}

// ListSince implements GaloyTransactionSource.
func (c *GaloyClient) ListSince(ctx context.Context, cursor string) ([]GaloyTransaction, string, error) {
	endpoint := c.baseURL + "/transactions"
	if cursor != "" {
		endpoint += "?after=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: build galoy request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: galoy transactions request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("jobs: read galoy response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("jobs: galoy transactions request failed, status=%d body=%s", resp.StatusCode, body)
	}

	var page galoyTransactionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("jobs: unmarshal galoy response: %w", err)
	}

	out := make([]GaloyTransaction, 0, len(page.Transactions))
	for _, t := range page.Transactions {
		sats, err := decimal.NewFromString(t.SatAmount)
		if err != nil {
			return nil, "", fmt.Errorf("jobs: parse galoy sat amount %q: %w", t.SatAmount, err)
		}
		cents, err := decimal.NewFromString(t.CentAmount)
		if err != nil {
			return nil, "", fmt.Errorf("jobs: parse galoy cent amount %q: %w", t.CentAmount, err)
		}
		direction := ledger.Debit
		if t.Direction == string(ledger.Credit) {
			direction = ledger.Credit
		}
		out = append(out, GaloyTransaction{ID: t.ID, Direction: direction, SatAmount: sats, CentAmount: cents})
	}

	next := page.NextCursor
	if next == "" {
		next = cursor
	}
	return out, next, nil
}
