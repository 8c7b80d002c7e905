package analysis

import (
	"math"
	"sort"
	"time"
)

// PricePoint is one stored price observation.
type PricePoint struct {
	Price      int
	CapturedAt time.Time
}

// Trend summarizes how a price series moved over the standard windows.
// Change fields are percentages relative to the oldest point inside each
// window and are nil when the window holds fewer than two points.
type Trend struct {
	Direction       string // "rising", "falling", "flat"
	Change24h       *float64
	Change7d        *float64
	Change30d       *float64
	Volatility      float64 // coefficient of variation over 30 days in percent, 0 when unknown
	Samples         int
	Recommendations []string
}

// flatBandPct is the band inside which a 7-day move counts as flat.
const flatBandPct = 3.0

// Buying-signal thresholds: a 24h drop beyond sharpDropPct is a possible
// entry point, dispersion beyond highVolatilityPct warrants timing caution.
const (
	sharpDropPct      = 5.0
	highVolatilityPct = 20.0
)

// AnalyzeTrend computes windowed changes and volatility for a series of
// observations. Points may arrive in any order; non-positive prices are
// ignored.
func AnalyzeTrend(points []PricePoint, now time.Time) Trend {
	valid := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Price > 0 {
			valid = append(valid, p)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].CapturedAt.Before(valid[j].CapturedAt)
	})

	trend := Trend{Direction: "flat", Samples: len(valid)}
	if len(valid) < 2 {
		return trend
	}

	trend.Change24h = windowChange(valid, now, 24*time.Hour)
	trend.Change7d = windowChange(valid, now, 7*24*time.Hour)
	trend.Change30d = windowChange(valid, now, 30*24*time.Hour)
	trend.Volatility = coefficientOfVariation(windowPrices(valid, now, 30*24*time.Hour))

	// Direction follows the 7-day window, falling back to 30 days for
	// sparsely sampled products.
	ref := trend.Change7d
	if ref == nil {
		ref = trend.Change30d
	}
	if ref != nil {
		switch {
		case *ref > flatBandPct:
			trend.Direction = "rising"
		case *ref < -flatBandPct:
			trend.Direction = "falling"
		}
	}

	if trend.Change24h != nil && *trend.Change24h < -sharpDropPct {
		trend.Recommendations = append(trend.Recommendations,
			"価格が24時間で5%以上下落しています。購入のチャンスかもしれません")
	}
	if trend.Volatility > highVolatilityPct {
		trend.Recommendations = append(trend.Recommendations,
			"価格変動が大きいため、購入タイミングに注意が必要です")
	}
	if trend.Direction == "falling" {
		trend.Recommendations = append(trend.Recommendations,
			"価格が下降トレンドにあります。もう少し待つことを検討してください")
	}
	return trend
}

// windowChange returns the percent change from the oldest to the newest
// point inside the window, or nil with fewer than two points.
func windowChange(sorted []PricePoint, now time.Time, window time.Duration) *float64 {
	prices := windowPrices(sorted, now, window)
	if len(prices) < 2 {
		return nil
	}
	first := float64(prices[0])
	last := float64(prices[len(prices)-1])
	v := (last - first) / first * 100
	return &v
}

func windowPrices(sorted []PricePoint, now time.Time, window time.Duration) []int {
	cutoff := now.Add(-window)
	var prices []int
	for _, p := range sorted {
		if p.CapturedAt.After(cutoff) {
			prices = append(prices, p.Price)
		}
	}
	return prices
}

// coefficientOfVariation is sample standard deviation over mean, in
// percent, the same dispersion measure used for the volatility column in
// exports.
func coefficientOfVariation(prices []int) float64 {
	if len(prices) < 2 {
		return 0
	}
	var sum float64
	for _, p := range prices {
		sum += float64(p)
	}
	mean := sum / float64(len(prices))
	if mean == 0 {
		return 0
	}
	var varianceSum float64
	for _, p := range prices {
		diff := float64(p) - mean
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum/float64(len(prices)-1)) / mean * 100
}
