package analysis

import (
	"math"
	"strings"
	"testing"
	"time"
)

func point(price int, age time.Duration, now time.Time) PricePoint {
	return PricePoint{Price: price, CapturedAt: now.Add(-age)}
}

func TestAnalyzeTrend_Rising(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(10000, 6*24*time.Hour, now),
		point(10500, 3*24*time.Hour, now),
		point(11000, 2*time.Hour, now),
	}

	trend := AnalyzeTrend(points, now)
	if trend.Direction != "rising" {
		t.Errorf("expected rising, got %q", trend.Direction)
	}
	if trend.Change7d == nil || math.Abs(*trend.Change7d-10) > 1e-9 {
		t.Errorf("expected +10%% over 7 days, got %v", trend.Change7d)
	}
	if trend.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", trend.Samples)
	}
}

func TestAnalyzeTrend_Falling(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(10000, 5*24*time.Hour, now),
		point(9000, time.Hour, now),
	}

	trend := AnalyzeTrend(points, now)
	if trend.Direction != "falling" {
		t.Errorf("expected falling, got %q", trend.Direction)
	}
}

func TestAnalyzeTrend_FlatBand(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(10000, 5*24*time.Hour, now),
		point(10200, time.Hour, now), // +2%, inside the band
	}

	trend := AnalyzeTrend(points, now)
	if trend.Direction != "flat" {
		t.Errorf("a 2%% move must read as flat, got %q", trend.Direction)
	}
}

func TestAnalyzeTrend_UnorderedInput(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(11000, 2*time.Hour, now),
		point(10000, 6*24*time.Hour, now),
	}

	trend := AnalyzeTrend(points, now)
	if trend.Change7d == nil || math.Abs(*trend.Change7d-10) > 1e-9 {
		t.Errorf("order of input must not matter, got %v", trend.Change7d)
	}
}

func TestAnalyzeTrend_WindowsAreIndependent(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(8000, 20*24*time.Hour, now),
		point(10000, 5*24*time.Hour, now),
		point(11000, time.Hour, now),
	}

	trend := AnalyzeTrend(points, now)
	// Only one point is newer than 24h, so that window has no change.
	if trend.Change24h != nil {
		t.Errorf("expected nil 24h change with one point, got %v", *trend.Change24h)
	}
	if trend.Change7d == nil || math.Abs(*trend.Change7d-10) > 1e-9 {
		t.Errorf("expected +10%% over 7 days, got %v", trend.Change7d)
	}
	if trend.Change30d == nil || math.Abs(*trend.Change30d-37.5) > 1e-9 {
		t.Errorf("expected +37.5%% over 30 days, got %v", trend.Change30d)
	}
}

func TestAnalyzeTrend_IgnoresInvalidPrices(t *testing.T) {
	now := time.Now()
	points := []PricePoint{
		point(-1, 3*24*time.Hour, now),
		point(0, 2*24*time.Hour, now),
		point(10000, time.Hour, now),
	}

	trend := AnalyzeTrend(points, now)
	if trend.Samples != 1 {
		t.Errorf("expected 1 valid sample, got %d", trend.Samples)
	}
	if trend.Change7d != nil {
		t.Error("a single valid sample must not produce a change")
	}
	if trend.Direction != "flat" {
		t.Errorf("expected flat, got %q", trend.Direction)
	}
}

func TestAnalyzeTrend_Volatility(t *testing.T) {
	now := time.Now()
	// Identical prices: zero dispersion.
	steady := []PricePoint{
		point(10000, 3*24*time.Hour, now),
		point(10000, 2*24*time.Hour, now),
		point(10000, time.Hour, now),
	}
	if v := AnalyzeTrend(steady, now).Volatility; v != 0 {
		t.Errorf("steady series must have zero volatility, got %v", v)
	}

	// 8000/12000/8000: sample stddev 2309 over mean 9333, about 24.7%.
	swingy := []PricePoint{
		point(8000, 3*24*time.Hour, now),
		point(12000, 2*24*time.Hour, now),
		point(8000, time.Hour, now),
	}
	if v := AnalyzeTrend(swingy, now).Volatility; v < 24 || v > 26 {
		t.Errorf("expected volatility around 24.7%%, got %v", v)
	}
}

func TestAnalyzeTrend_Recommendations(t *testing.T) {
	now := time.Now()

	dropping := []PricePoint{
		point(10000, 20*time.Hour, now),
		point(9000, time.Hour, now), // -10% inside 24h
	}
	trend := AnalyzeTrend(dropping, now)
	if !hasTrendNote(trend, "購入のチャンス") {
		t.Errorf("a sharp 24h drop must suggest a buying chance, got %v", trend.Recommendations)
	}
	if !hasTrendNote(trend, "下降トレンド") {
		t.Errorf("a falling direction must carry a wait note, got %v", trend.Recommendations)
	}

	swingy := []PricePoint{
		point(8000, 3*24*time.Hour, now),
		point(12000, 2*24*time.Hour, now),
		point(8000, time.Hour, now),
	}
	trend = AnalyzeTrend(swingy, now)
	if !hasTrendNote(trend, "購入タイミング") {
		t.Errorf("high volatility must warn about timing, got %v", trend.Recommendations)
	}

	steady := []PricePoint{
		point(10000, 2*24*time.Hour, now),
		point(10100, time.Hour, now),
	}
	if trend := AnalyzeTrend(steady, now); len(trend.Recommendations) != 0 {
		t.Errorf("a quiet series must produce no recommendations, got %v", trend.Recommendations)
	}
}

func hasTrendNote(trend Trend, substr string) bool {
	for _, rec := range trend.Recommendations {
		if strings.Contains(rec, substr) {
			return true
		}
	}
	return false
}

func TestAnalyzeTrend_Empty(t *testing.T) {
	trend := AnalyzeTrend(nil, time.Now())
	if trend.Direction != "flat" || trend.Samples != 0 {
		t.Errorf("unexpected trend for no data: %+v", trend)
	}
}
