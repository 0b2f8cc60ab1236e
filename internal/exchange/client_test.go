package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/exchange"
)

func simulatedClient() *exchange.Client {
	return exchange.New(exchange.Config{Simulated: true}, zerolog.Nop())
}

func TestSimulatedDepositAddressIsBurnerAddress(t *testing.T) {
	c := simulatedClient()
	addr, err := c.GetFundingDepositAddress(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, addr)
}

func TestSimulatedPlaceOrderIsIdempotentByClientID(t *testing.T) {
	c := simulatedClient()
	id, err := c.PlaceOrder(context.Background(), "client-order-1", exchange.SideBuy, 1)
	require.NoError(t, err)
	assert.Contains(t, id, "client-order-1")
}

func TestSimulatedClosePositionsNeverErrors(t *testing.T) {
	c := simulatedClient()
	err := c.ClosePositions(context.Background(), "client-order-2")
	assert.NoError(t, err)
}

func TestOnchainFeesClampToConfiguredMinimums(t *testing.T) {
	c := simulatedClient()
	fees, err := c.GetOnchainFees(context.Background())
	require.NoError(t, err)
	assert.True(t, fees.MinFee.GreaterThanOrEqual(exchange.MinFeeBTC))
	assert.True(t, fees.MinWithdraw.GreaterThanOrEqual(exchange.MinWithdrawBTC))
}

func TestRateLimiterSerializesSamePathCalls(t *testing.T) {
	limiter := exchange.NewRateLimiter()
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx, "/same/path"))
	require.NoError(t, limiter.Acquire(ctx, "/same/path"))
	elapsed := time.Since(start)
	assert.True(t, elapsed >= 900*time.Millisecond, "second acquire on the same path should wait out the refill period, took %s", elapsed)
}

func TestRateLimiterDoesNotSerializeDifferentPaths(t *testing.T) {
	limiter := exchange.NewRateLimiter()
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx, "/path/a"))
	require.NoError(t, limiter.Acquire(ctx, "/path/b"))
	elapsed := time.Since(start)
	assert.True(t, elapsed < 500*time.Millisecond, "independent paths should not share a bucket, took %s", elapsed)
}
