package jobs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/jobs"
	"github.com/aristath/stablesats/internal/ledger"
)

func TestGaloyClient_ListSinceParsesPageAndSendsCursor(t *testing.T) {
	var gotAfter, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAfter = r.URL.Query().Get("after")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"transactions": [
				{"id": "galoy-1", "direction": "credit", "sat_amount": "100000", "cent_amount": "5000"},
				{"id": "galoy-2", "direction": "debit", "sat_amount": "20000", "cent_amount": "1000"}
			],
			"next_cursor": "galoy-2"
		}`))
	}))
	defer srv.Close()

	c := jobs.NewGaloyClient(srv.URL, "test-key")
	txns, next, err := c.ListSince(context.Background(), "galoy-0")
	require.NoError(t, err)

	assert.Equal(t, "galoy-0", gotAfter)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "galoy-2", next)

	require.Len(t, txns, 2)
	assert.Equal(t, "galoy-1", txns[0].ID)
	assert.Equal(t, ledger.Credit, txns[0].Direction)
	assert.True(t, txns[0].SatAmount.Equal(decimal.NewFromInt(100_000)))
	assert.Equal(t, ledger.Debit, txns[1].Direction)
}

func TestGaloyClient_ListSincePropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := jobs.NewGaloyClient(srv.URL, "")
	_, _, err := c.ListSince(context.Background(), "")
	assert.Error(t, err)
}
