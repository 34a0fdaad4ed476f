package detect

import (
	"time"

	"github.com/sentinel-smc/sentinel/internal/candle"
)

// OBStatus is the lifecycle state of an order block.
type OBStatus string

const (
	OBFresh       OBStatus = "FRESH"
	OBTested      OBStatus = "TESTED"
	OBMitigated   OBStatus = "MITIGATED"
	OBInvalidated OBStatus = "INVALIDATED"
)

// OrderBlock is the last opposite-direction candle before a displacement
// move through a prior swing extreme.
type OrderBlock struct {
	Index         int
	Timestamp     time.Time
	High, Low     float64
	Direction     candle.Trend // BULLISH = demand, BEARISH = supply
	Status        OBStatus
	TestedIndex   int
	InvalidatedAt int
}

// MinImbalanceRatio is the minimum body-to-range ratio a displacement
// candle must show for the prior candle to qualify as an order block
// (grounded on original_source/core/order_blocks.py min_imbalance_ratio).
const MinImbalanceRatio = 0.6

// OrderBlocks scans a frame for bullish and bearish order blocks anchored
// on the supplied structure breaks, then forward-scans each one to apply
// its lifecycle status.
func OrderBlocks(f candle.Frame, breaks []StructureBreak) []OrderBlock {
	var obs []OrderBlock
	for _, b := range breaks {
		if b.Index == 0 {
			continue
		}
		anchor := b.Index - 1
		if anchor < 0 || anchor >= len(f) {
			continue
		}
		mover := f[b.Index]
		if !isDisplacement(mover) {
			continue
		}
		candidate := f[anchor]
		switch b.Direction {
		case candle.Bullish:
			if candidate.Close <= candidate.Open { // last down-candle before the up-break
				obs = append(obs, OrderBlock{
					Index: anchor, Timestamp: candidate.Timestamp,
					High: candidate.High, Low: candidate.Low,
					Direction: candle.Bullish, Status: OBFresh,
				})
			}
		case candle.Bearish:
			if candidate.Close >= candidate.Open { // last up-candle before the down-break
				obs = append(obs, OrderBlock{
					Index: anchor, Timestamp: candidate.Timestamp,
					High: candidate.High, Low: candidate.Low,
					Direction: candle.Bearish, Status: OBFresh,
				})
			}
		}
	}
	for i := range obs {
		updateOBStatus(&obs[i], f)
	}
	return obs
}

func isDisplacement(c candle.Candle) bool {
	rng := c.High - c.Low
	if rng <= 0 {
		return false
	}
	body := c.Close - c.Open
	if body < 0 {
		body = -body
	}
	return body/rng >= MinImbalanceRatio
}

// updateOBStatus forward-scans the frame past the order block's origin
// bar, marking it TESTED on the first wick re-entry and INVALIDATED on
// the first close back through its far edge; it stops advancing once
// invalidated (grounded on original_source/core/order_blocks.py
// _update_ob_status, which halts the scan at first invalidation).
func updateOBStatus(ob *OrderBlock, f candle.Frame) {
	for i := ob.Index + 1; i < len(f); i++ {
		c := f[i]
		switch ob.Direction {
		case candle.Bullish:
			if c.Low <= ob.High && ob.Status == OBFresh {
				ob.Status = OBTested
				ob.TestedIndex = i
			}
			if c.Close < ob.Low {
				ob.Status = OBInvalidated
				ob.InvalidatedAt = i
				return
			}
		case candle.Bearish:
			if c.High >= ob.Low && ob.Status == OBFresh {
				ob.Status = OBTested
				ob.TestedIndex = i
			}
			if c.Close > ob.High {
				ob.Status = OBInvalidated
				ob.InvalidatedAt = i
				return
			}
		}
	}
}

// ActiveOrderBlocks filters to blocks that are still tradeable zones
// (fresh or tested, not mitigated/invalidated).
func ActiveOrderBlocks(obs []OrderBlock) []OrderBlock {
	var out []OrderBlock
	for _, ob := range obs {
		if ob.Status == OBFresh || ob.Status == OBTested {
			out = append(out, ob)
		}
	}
	return out
}
