// Package profit holds the two purchase-decision calculators: Estimate, the
// Amazon-vs-auction spread used on the dashboard, and PlanPurchase, the
// per-product planner that nets out shipping and reward points. They answer
// different questions and are deliberately kept separate.
package profit

import (
	"math"

	"resalescout/internal/model"
)

// Fee rates are configuration constants, not derived values.
const (
	CategoryFeeRate    = 0.10
	FulfillmentFeeRate = 0.15
	AuctionFeeRate     = 0.10
)

// Estimate computes the profit verdict for selling on Amazon what was bought
// at auction. amazonPrice is the expected Amazon sell price, auctionPrice the
// expected auction purchase price, both whole yen; targetRate is a percentage.
// When either price is absent every derived field is nil and the result is
// not profitable; there is never a division by an absent or zero price.
func Estimate(amazonPrice, auctionPrice *int, targetRate float64) *model.ProfitAnalysis {
	if amazonPrice == nil || auctionPrice == nil || *amazonPrice <= 0 {
		return &model.ProfitAnalysis{IsProfitable: false}
	}

	amazon := float64(*amazonPrice)
	auction := float64(*auctionPrice)

	amazonFees := amazon * (CategoryFeeRate + FulfillmentFeeRate)
	auctionFees := auction * AuctionFeeRate

	potentialProfit := amazon - amazonFees - auction - auctionFees
	profitRate := potentialProfit / amazon * 100

	// The most one can pay at auction and still hit the target rate,
	// floored to stay conservative.
	targetProfit := amazon * (targetRate / 100)
	recommended := (amazon - amazonFees - targetProfit) / (1 + AuctionFeeRate)
	if recommended < 0 {
		recommended = 0
	}

	return &model.ProfitAnalysis{
		PotentialProfit:          model.Float(potentialProfit),
		ProfitRate:               model.Float(profitRate),
		IsProfitable:             profitRate >= targetRate,
		AmazonFees:               model.Float(amazonFees),
		AuctionFees:              model.Float(auctionFees),
		RecommendedPurchasePrice: model.Int(int(math.Floor(recommended))),
	}
}

// PurchasePlan is the input to the detail-view planner.
type PurchasePlan struct {
	SellPrice        int
	Category         string
	SellShipping     int
	PurchaseShipping int
	Points           *int
	TargetRate       float64 // fraction, e.g. 0.30
}

// Planner fee constants, distinct from the Estimate rates above.
const (
	plannerBaseFee         = 100
	plannerCategoryFeeRate = 0.08
	plannerShippingFeeRate = 0.10
)

// SellingFees returns the Amazon fee for one sale under the planner model:
// a flat base fee, a category referral fee, and a cut of the shipping charge.
func SellingFees(price int, category string, shipping int) float64 {
	_ = category // all categories share one referral rate today
	return plannerBaseFee + float64(price)*plannerCategoryFeeRate + float64(shipping)*plannerShippingFeeRate
}

// PlanPurchase returns the maximum purchase price that still meets the
// target profit rate after fees, both-way shipping, and any reward points,
// floored and clamped to zero.
func PlanPurchase(p PurchasePlan) int {
	fees := SellingFees(p.SellPrice, p.Category, p.SellShipping)
	points := 0
	if p.Points != nil {
		points = *p.Points
	}
	netRevenue := float64(p.SellPrice) - fees - float64(p.SellShipping) + float64(points)
	targetCost := netRevenue / (1 + p.TargetRate)
	result := int(math.Floor(targetCost)) - p.PurchaseShipping
	if result < 0 {
		return 0
	}
	return result
}

// QuickCheck is the flat-rate profit check used for marketplaces that take a
// flat 10% cut with no fulfillment fee.
func QuickCheck(purchase, sell, purchaseShipping, sellShipping int) (profit int, profitRate int, fees int) {
	fees = int(math.Floor(float64(sell) * 0.1))
	totalCost := purchase + purchaseShipping + sellShipping + fees
	profit = sell - totalCost
	if purchase > 0 {
		profitRate = int(math.Round(float64(profit) / float64(purchase) * 100))
	}
	return profit, profitRate, fees
}
