package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/executor"
)

func TestSynthesizeFills_RoundsToEightPlaces(t *testing.T) {
	fills := executor.SynthesizeFills(contracts.SideBuy, d("100"), d("3"))
	require.Len(t, fills, 2)
	// 100/3 = 33.33333333; 60% = 20.0; remainder 13.33333333
	assert.Equal(t, "20", fills[0].Quantity.String())
	assert.Equal(t, "13.33333333", fills[1].Quantity.String())
	assert.Equal(t, "33.33333333", fills[0].Quantity.Add(fills[1].Quantity).String())
}

func TestRealizedSlippageBps(t *testing.T) {
	buy := executor.SynthesizeFills(contracts.SideBuy, d("1000"), d("50000"))
	assert.Equal(t, "7", executor.RealizedSlippageBps(buy, d("50000")).String())
	assert.Equal(t, "50035", executor.VWAP(buy).String())

	sell := executor.SynthesizeFills(contracts.SideSell, d("1000"), d("50000"))
	assert.Equal(t, "7", executor.RealizedSlippageBps(sell, d("50000")).String())

	assert.True(t, executor.RealizedSlippageBps(nil, d("0")).IsZero())
	assert.True(t, executor.VWAP(nil).IsZero())
}

func TestKillSwitch(t *testing.T) {
	ks := executor.NewKillSwitch(false, "")
	assert.False(t, ks.IsActive())
	assert.False(t, ks.Blocks(contracts.ModeLive))

	ks.Activate("manual")
	active, behavior, reason, since := ks.Status()
	assert.True(t, active)
	assert.Equal(t, executor.BlockAll, behavior)
	assert.Equal(t, "manual", reason)
	assert.False(t, since.IsZero())
	assert.True(t, ks.Blocks(contracts.ModePaper))

	liveOnly := executor.NewKillSwitch(true, executor.BlockLive)
	assert.True(t, liveOnly.Blocks(contracts.ModeLive))
	assert.False(t, liveOnly.Blocks(contracts.ModePaper))

	b, err := executor.ParseKillSwitchBehavior("BLOCK_LIVE")
	require.NoError(t, err)
	assert.Equal(t, executor.BlockLive, b)
	_, err = executor.ParseKillSwitchBehavior("pause")
	assert.Error(t, err)
}
