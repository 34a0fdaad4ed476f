// Package size implements the Position Sizer (spec §4.G): converts a
// scored Signal, account balance and instrument metadata into a lot size,
// grounded on execution_service.go's fixed-$-risk sizing
// (`targetQty := es.config.RiskPerTrade / riskDist`), generalized to the
// spec's percent-of-balance + pip-value-table formula and promoted to
// github.com/shopspring/decimal for the money arithmetic.
package size

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// ErrLotTooSmall is returned when the computed lot size, after clamping,
// would fall below the instrument's minimum executable volume.
var ErrLotTooSmall = errors.New("size: lot too small")

// PipValueTable supplies the asset-class fallback pip-value-per-lot used
// when the instrument doesn't carry a broker-reported value (spec §4.G,
// §13 grounded-decision: broker value preferred when present).
var PipValueTable = map[candle.AssetClass]float64{
	candle.AssetCrypto:     1.0,
	candle.AssetIndices:    1.0,
	candle.AssetCommodity:  100.0,
	candle.AssetForexMajor: 100000.0,
}

// JPYPipValue is the pip-value-per-lot override for JPY-quoted forex
// majors (spec §4.G: "1000.0 for JPY majors").
const JPYPipValue = 1000.0

// Params bundles the inputs to position sizing beyond the instrument and
// signal themselves.
type Params struct {
	Balance      decimal.Decimal
	RiskPercent  decimal.Decimal // e.g. 1.0 for 1%
	LotMultiplier decimal.Decimal
	IsJPYQuoted  bool
	SymbolCap    decimal.Decimal // 0 means "no symbol-specific cap"
}

// pipValuePerLot resolves the instrument's pip value, preferring the
// broker-reported figure over the asset-class table.
func pipValuePerLot(in candle.Instrument, jpy bool) decimal.Decimal {
	if in.PipValuePerLot > 0 {
		return decimal.NewFromFloat(in.PipValuePerLot)
	}
	if jpy {
		return decimal.NewFromFloat(JPYPipValue)
	}
	if v, ok := PipValueTable[in.AssetClass]; ok {
		return decimal.NewFromFloat(v)
	}
	return decimal.NewFromFloat(PipValueTable[candle.AssetForexMajor])
}

// Lots computes the position size in lots for entry/stop prices and the
// given instrument, following spec §4.G: risk_amount -> raw lots ->
// clamp to [min, min(max, cap)] -> round to step -> multiply by
// lot_multiplier -> round to step again. A result below the minimum
// executable volume returns ErrLotTooSmall; it is not raised back to it.
func Lots(entry, stop float64, in candle.Instrument, p Params) (decimal.Decimal, error) {
	riskAmount := p.Balance.Mul(p.RiskPercent).Div(decimal.NewFromInt(100))

	slDistance := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	if slDistance.IsZero() {
		return decimal.Zero, ErrLotTooSmall
	}
	pipSize := decimal.NewFromFloat(in.PipSize)
	if pipSize.IsZero() {
		pipSize = decimal.NewFromFloat(0.0001)
	}
	pipValue := pipValuePerLot(in, p.IsJPYQuoted)

	slPips := slDistance.Div(pipSize)
	denom := slPips.Mul(pipValue)
	if denom.IsZero() {
		return decimal.Zero, ErrLotTooSmall
	}
	rawLots := riskAmount.Div(denom)

	volMax := decimal.NewFromFloat(in.VolumeMax)
	if !p.SymbolCap.IsZero() && p.SymbolCap.LessThan(volMax) {
		volMax = p.SymbolCap
	}
	volMin := decimal.NewFromFloat(in.VolumeMin)
	clamped := clamp(rawLots, volMin, volMax)

	step := decimal.NewFromFloat(in.VolumeStep)
	rounded := roundToStep(clamped, step)

	mult := p.LotMultiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	final := rounded.Mul(mult)
	final = roundToStep(final, step)

	if final.LessThan(volMin) {
		return decimal.Zero, ErrLotTooSmall
	}
	return final, nil
}

func clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if !min.IsZero() && v.LessThan(min) {
		v = min
	}
	if !max.IsZero() && v.GreaterThan(max) {
		v = max
	}
	return v
}

func roundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	units := v.Div(step).Floor()
	return units.Mul(step)
}
