package pubsub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/pubsub"
)

func TestPublishSubscribeDeliversInOrder(t *testing.T) {
	bus := pubsub.New()
	ch, cancel := bus.Subscribe("prices.okex")
	defer cancel()

	bus.Publish("prices.okex", "tick-1")
	bus.Publish("prices.okex", "tick-2")

	first := (<-ch).(pubsub.Message)
	second := (<-ch).(pubsub.Message)

	assert.Equal(t, "tick-1", first.Data)
	assert.Equal(t, "tick-2", second.Data)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestSlowSubscriberGetsLagNotDropSilently(t *testing.T) {
	bus := pubsub.New()
	ch, cancel := bus.Subscribe("ledger.usd_liability")
	defer cancel()

	// Flood past the buffer without draining.
	for i := 0; i < 100; i++ {
		bus.Publish("ledger.usd_liability", i)
	}

	sawLag := false
	for i := 0; i < 64; i++ {
		select {
		case v := <-ch:
			if _, ok := v.(pubsub.Lag); ok {
				sawLag = true
			}
		default:
		}
	}
	assert.True(t, sawLag, "expected at least one Lag signal for an overwhelmed subscriber")
}

func TestLastMessageAtTracksLiveness(t *testing.T) {
	bus := pubsub.New()
	_, ok := bus.LastMessageAt("x")
	assert.False(t, ok)

	bus.Publish("x", 1)
	ts, ok := bus.LastMessageAt("x")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, time.Second)
}

func TestCancelRemovesSubscriber(t *testing.T) {
	bus := pubsub.New()
	assert.Equal(t, 0, bus.SubscriberCount("y"))
	_, cancel := bus.Subscribe("y")
	assert.Equal(t, 1, bus.SubscriberCount("y"))
	cancel()
	assert.Equal(t, 0, bus.SubscriberCount("y"))
}
