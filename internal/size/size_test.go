package size

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

func TestLots_ForexMajor(t *testing.T) {
	in := candle.Instrument{
		AssetClass: candle.AssetForexMajor,
		PipSize:    0.0001,
		VolumeMin:  0.01,
		VolumeMax:  10,
		VolumeStep: 0.01,
	}
	p := Params{
		Balance:       decimal.NewFromInt(10000),
		RiskPercent:   decimal.NewFromFloat(1),
		LotMultiplier: decimal.NewFromFloat(1.0),
	}
	// entry 1.1000, stop 1.0960 -> 40 pips risk; risk_amount=100; pip value
	// 100000/lot -> lots = 100 / (40*100000) = 0.000025 -> clamps to min.
	lots, err := Lots(1.1000, 1.0960, in, p)
	require.NoError(t, err)
	assert.True(t, lots.Equal(decimal.NewFromFloat(0.01)), "got %s", lots)
}

func TestLots_RespectsLotMultiplier(t *testing.T) {
	in := candle.Instrument{
		AssetClass: candle.AssetForexMajor,
		PipSize:    0.0001,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}
	p := Params{
		Balance:       decimal.NewFromInt(1000000),
		RiskPercent:   decimal.NewFromFloat(1),
		LotMultiplier: decimal.NewFromFloat(0.5),
	}
	full, err := Lots(1.1000, 1.0960, in, Params{Balance: p.Balance, RiskPercent: p.RiskPercent, LotMultiplier: decimal.NewFromFloat(1.0)})
	require.NoError(t, err)
	halved, err := Lots(1.1000, 1.0960, in, p)
	require.NoError(t, err)
	assert.True(t, halved.LessThan(full))
}

func TestLots_ZeroStopDistanceRejected(t *testing.T) {
	in := candle.Instrument{AssetClass: candle.AssetCrypto, PipSize: 1, VolumeMin: 0.001, VolumeMax: 10, VolumeStep: 0.001}
	_, err := Lots(100, 100, in, Params{Balance: decimal.NewFromInt(1000), RiskPercent: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrLotTooSmall)
}

func TestLots_BrokerPipValuePreferred(t *testing.T) {
	in := candle.Instrument{
		AssetClass:     candle.AssetCommodity,
		PipSize:        0.01,
		PipValuePerLot: 1.0, // broker-reported, overrides the 100.0 commodity table entry
		VolumeMin:      0.01,
		VolumeMax:      50,
		VolumeStep:     0.01,
	}
	p := Params{Balance: decimal.NewFromInt(10000), RiskPercent: decimal.NewFromFloat(1), LotMultiplier: decimal.NewFromFloat(1)}
	lots, err := Lots(2000, 1990, in, p) // 10 pips (in price/pipSize units) risk
	require.NoError(t, err)
	assert.True(t, lots.GreaterThan(decimal.Zero))
}
