package services

import "math"

const basisPointScale = 10000

// Commission is the split of one amount between headquarters and the fulfilling store.
type Commission struct {
	Amount     int64 `json:"amount"`
	Commission int64 `json:"commission"`
	NetAmount  int64 `json:"net_amount"`
	RateBps    int64 `json:"rate_bps"`
}

// CommissionCalculator is the only place commission is computed. Rates are
// fixed to whole basis points before use so repeated calls never drift.
type CommissionCalculator struct {
	defaultBps int64
}

// NewCommissionCalculator builds a calculator falling back to defaultRate (0.25 = 25%).
func NewCommissionCalculator(defaultRate float64) CommissionCalculator {
	return CommissionCalculator{defaultBps: RateToBasisPoints(defaultRate)}
}

// RateToBasisPoints converts a fractional rate to basis points, clamped to [0, 10000].
func RateToBasisPoints(rate float64) int64 {
	if math.IsNaN(rate) || rate <= 0 {
		return 0
	}
	if rate >= 1 {
		return basisPointScale
	}
	return int64(math.Round(rate * basisPointScale))
}

// EffectiveRate returns the basis points applied for a store rate override, if any.
func (c CommissionCalculator) EffectiveRate(storeRate *float64) int64 {
	if storeRate != nil {
		return RateToBasisPoints(*storeRate)
	}
	return c.defaultBps
}

// Calculate splits amount using storeRate when set, else the default rate.
// Commission is rounded down to the whole won.
func (c CommissionCalculator) Calculate(amount int64, storeRate *float64) Commission {
	bps := c.EffectiveRate(storeRate)
	if amount <= 0 {
		return Commission{Amount: amount, NetAmount: amount, RateBps: bps}
	}
	commission := amount * bps / basisPointScale
	return Commission{
		Amount:     amount,
		Commission: commission,
		NetAmount:  amount - commission,
		RateBps:    bps,
	}
}
