package escrow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name       string
		amount     uint64
		feeBps     uint32
		wantFee    uint64
		wantPayout uint64
	}{
		{name: "one percent", amount: 10000, feeBps: 100, wantFee: 100, wantPayout: 9900},
		{name: "two and a half percent", amount: 10000, feeBps: 250, wantFee: 250, wantPayout: 9750},
		{name: "zero fee", amount: 10000, feeBps: 0, wantFee: 0, wantPayout: 10000},
		{name: "full fee", amount: 10000, feeBps: 10000, wantFee: 10000, wantPayout: 0},
		{name: "rounds down", amount: 999, feeBps: 100, wantFee: 9, wantPayout: 990},
		{name: "small amount below fee granularity", amount: 50, feeBps: 100, wantFee: 0, wantPayout: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, payout, err := ComputeFee(tt.amount, tt.feeBps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantPayout, payout)
			assert.Equal(t, tt.amount, fee+payout, "fee and payout must account for the full amount")
		})
	}
}

func TestComputeFeeInvalidBps(t *testing.T) {
	_, _, err := ComputeFee(10000, 10001)
	assert.ErrorIs(t, err, ErrInvalidFeeBps)
}

func TestComputeFeeOverflow(t *testing.T) {
	_, _, err := ComputeFee(math.MaxUint64, 100)
	assert.ErrorIs(t, err, ErrOverflow)

	// Large amounts with a zero fee rate never overflow
	fee, payout, err := ComputeFee(math.MaxUint64, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee)
	assert.Equal(t, uint64(math.MaxUint64), payout)
}
