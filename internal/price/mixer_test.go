package price_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stablesats/internal/price"
)

type fakeProvider struct {
	value decimal.Decimal
	err   error
}

func (f fakeProvider) Latest() (decimal.Decimal, error) { return f.value, f.err }

func TestMixerWeightedAverageSkipsFailingProviders(t *testing.T) {
	m := price.NewMixer()
	m.Register("okex", fakeProvider{value: d("100")}, decimal.NewFromInt(3))
	m.Register("bitfinex", fakeProvider{value: d("200")}, decimal.NewFromInt(1))
	m.Register("deribit", fakeProvider{err: errors.New("down")}, decimal.NewFromInt(10))

	got, err := m.Apply(func(x decimal.Decimal) decimal.Decimal { return x })
	require.NoError(t, err)
	// (3*100 + 1*200) / (3+1) = 125, deribit's weight never enters the sums.
	assert.True(t, got.Equal(d("125")), "got %s", got)
}

func TestMixerAllProvidersFailing(t *testing.T) {
	m := price.NewMixer()
	m.Register("okex", fakeProvider{err: errors.New("boom")}, decimal.NewFromInt(1))

	_, err := m.Apply(func(x decimal.Decimal) decimal.Decimal { return x })
	assert.Error(t, err)
}
