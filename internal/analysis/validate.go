// Package analysis grades the trustworthiness of fetched price data and
// derives trends from stored history. Validation never rejects a product
// outright; it attaches a confidence level and human-readable notes so the
// caller can decide how much weight to give the numbers.
package analysis

import (
	"fmt"
	"math"
	"time"

	"resalescout/internal/model"
)

// Staleness tiers. Data inside the fresh window is fully trusted, data
// inside the recent window is usable with caution, anything older is
// flagged.
const (
	freshWindow  = time.Hour
	recentWindow = 24 * time.Hour
)

// Variation bands against the 90-day average, in percent.
const (
	stableVariationPct = 10.0
	largeVariationPct  = 20.0
)

// usedOverNewTolerance is how far a used price may exceed the new price
// before the pair is considered inconsistent. Some leeway is needed for
// discontinued items where used copies genuinely trade above list.
const usedOverNewTolerance = 1.2

// Validate inspects fetched Amazon data and returns a confidence verdict.
// It also repairs impossible values in place: non-positive prices are
// cleared rather than carried into downstream profit math. Every staleness
// tier leaves exactly one note, so the recommendation list doubles as an
// audit trail of what was checked.
func Validate(data *model.AmazonData, now time.Time) *model.PriceAnalysis {
	result := &model.PriceAnalysis{
		ConfidenceLevel:  "high",
		MarketComparison: "標準的",
	}
	if data == nil {
		result.ConfidenceLevel = "low"
		result.Recommendations = append(result.Recommendations, "価格データが取得できませんでした")
		return result
	}

	clearNonPositive(data)

	age := now.Sub(data.LastUpdated)
	switch {
	case age < freshWindow:
		result.IsRecentData = true
		result.Recommendations = append(result.Recommendations, "データは最新です（1時間以内）")
	case age < recentWindow:
		result.IsRecentData = true
		demote(result, "medium")
		result.Recommendations = append(result.Recommendations, "データは比較的新しいです（24時間以内）")
	default:
		result.IsRecentData = false
		demote(result, "low")
		result.Recommendations = append(result.Recommendations, "データが古いため再取得を推奨します")
	}

	if v := variationAgainstAverage(data); v != nil {
		result.PriceVariation = v
		abs := math.Abs(*v)
		side, sideNote := "高い", "高く"
		if *v < 0 {
			side, sideNote = "安い", "安く"
		}
		switch {
		case abs < stableVariationPct:
			result.MarketComparison = "平均的"
			result.Recommendations = append(result.Recommendations, "現在価格は90日平均と近似しています")
		case abs < largeVariationPct:
			result.MarketComparison = "平均より" + side
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("現在価格は90日平均より%.0f%%%sです", abs, side))
		default:
			result.MarketComparison = "大幅に" + side
			if result.ConfidenceLevel == "high" {
				result.ConfidenceLevel = "medium"
			}
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("現在価格は90日平均より%.0f%%%s、要注意です", abs, sideNote))
		}
	}

	if data.UsedPrice != nil && data.NewPrice != nil {
		switch {
		case float64(*data.UsedPrice) > float64(*data.NewPrice)*usedOverNewTolerance:
			demote(result, "low")
			result.Recommendations = append(result.Recommendations,
				"中古価格が新品価格を大きく上回っています。データの整合性を確認してください")
		case *data.UsedPrice > *data.NewPrice:
			result.Recommendations = append(result.Recommendations,
				"中古価格が新品価格より高いため、注意が必要です")
		}
	}

	if data.UsedPrice == nil && data.NewPrice == nil {
		demote(result, "low")
		result.Recommendations = append(result.Recommendations, "有効な販売価格がありません")
	}

	return result
}

// clearNonPositive nulls out prices that cannot be real. A zero or negative
// yen price is always an upstream artifact.
func clearNonPositive(data *model.AmazonData) {
	for _, p := range []**int{
		&data.AmazonPrice, &data.NewPrice, &data.UsedPrice,
		&data.Conditions.LikeNew, &data.Conditions.VeryGood,
		&data.Conditions.Good, &data.Conditions.Acceptable,
		&data.AvgPrice30Days, &data.AvgPrice90Days, &data.AvgPrice180Days,
	} {
		if *p != nil && **p <= 0 {
			*p = nil
		}
	}
}

// variationAgainstAverage returns the percent deviation of the current used
// price from the 90-day average, or nil when either side is missing.
func variationAgainstAverage(data *model.AmazonData) *float64 {
	if data.UsedPrice == nil || data.AvgPrice90Days == nil || *data.AvgPrice90Days == 0 {
		return nil
	}
	v := (float64(*data.UsedPrice) - float64(*data.AvgPrice90Days)) / float64(*data.AvgPrice90Days) * 100
	return model.Float(v)
}

// demote lowers the confidence level, never raises it.
func demote(result *model.PriceAnalysis, level string) {
	if rank(level) < rank(result.ConfidenceLevel) {
		result.ConfidenceLevel = level
	}
}

func rank(level string) int {
	switch level {
	case "high":
		return 2
	case "medium":
		return 1
	default:
		return 0
	}
}
