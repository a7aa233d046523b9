package domain

import "time"

// ListingActivityStats tracks per-item listing churn. Current counts are
// recomputed from the listings table on every mutation; moving averages are an
// exponential blend that smooths short bursts. The row is created on the first
// listing for an item and never explicitly deleted.
type ListingActivityStats struct {
	ItemID             string
	CurrentBuyCount    int
	CurrentSellCount   int
	MovingAvgBuyCount  float64
	MovingAvgSellCount float64
}

// ActivityBand classifies an item's trading liquidity on one side. Liquid
// items churn fast and stale quotes there are actively misleading; illiquid
// items need a long memory or no price can ever be computed.
type ActivityBand string

const (
	BandVeryActive       ActivityBand = "very_active"
	BandActive           ActivityBand = "active"
	BandModeratelyActive ActivityBand = "moderately_active"
	BandSomewhatActive   ActivityBand = "somewhat_active"
	BandLowActive        ActivityBand = "low_active"
	BandRare             ActivityBand = "rare"
)

// RetentionFailsafe is the hard ceiling on listing age regardless of band.
// It protects against stats-table drift.
const RetentionFailsafe = 5 * 24 * time.Hour

// BandFor maps a side's moving-average listing count to its activity band.
func BandFor(movingAvg float64) ActivityBand {
	switch {
	case movingAvg > 10:
		return BandVeryActive
	case movingAvg > 8:
		return BandActive
	case movingAvg > 6:
		return BandModeratelyActive
	case movingAvg > 4:
		return BandSomewhatActive
	case movingAvg > 2:
		return BandLowActive
	default:
		return BandRare
	}
}

// RetentionWindow returns the maximum listing age for an activity band.
func RetentionWindow(band ActivityBand) time.Duration {
	switch band {
	case BandVeryActive:
		return 35 * time.Minute
	case BandActive:
		return 2 * time.Hour
	case BandModeratelyActive:
		return 6 * time.Hour
	case BandSomewhatActive:
		return 24 * time.Hour
	case BandLowActive:
		return 3 * 24 * time.Hour
	default:
		return RetentionFailsafe
	}
}
