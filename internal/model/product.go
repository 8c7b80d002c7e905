package model

import (
	"encoding/json"
	"time"
)

// Status tracks the fetch lifecycle of a registered product.
// Transitions are strictly pending -> loading -> success|error.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Product is one registered item. Either ASIN or Keyword identifies it;
// a keyword-only record may have an ASIN attached later, which re-triggers
// a fetch.
type Product struct {
	ID               string  `json:"id"`
	Name             string  `json:"name,omitempty"`
	ASIN             string  `json:"asin,omitempty"`
	Keyword          string  `json:"keyword,omitempty"`
	TargetProfitRate float64 `json:"targetProfitRate"`
	MaxPurchasePrice *int    `json:"maxPurchasePrice,omitempty"`

	Amazon  *AmazonData     `json:"amazon,omitempty"`
	Auction *AuctionData    `json:"auction,omitempty"`
	Profit  *ProfitAnalysis `json:"profit,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone deep-copies the product, including every nested pointer field, so
// the copy can be handed out without aliasing live state. Product is fully
// JSON-serializable, which makes the round trip exact.
func (p *Product) Clone() *Product {
	data, err := json.Marshal(p)
	if err != nil {
		cp := *p
		return &cp
	}
	var cp Product
	if err := json.Unmarshal(data, &cp); err != nil {
		shallow := *p
		return &shallow
	}
	return &cp
}

// AmazonData holds everything extracted from one Keepa payload for a product.
// Price fields are whole yen; nil means no data, never zero-for-missing.
type AmazonData struct {
	Title        string `json:"title"`
	Category     string `json:"category,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	JAN          string `json:"jan,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`

	AmazonPrice *int `json:"amazonPrice,omitempty"`
	NewPrice    *int `json:"newPrice,omitempty"`
	UsedPrice   *int `json:"usedPrice,omitempty"`
	SalesRank   *int `json:"salesRank,omitempty"`

	Conditions UsedConditions `json:"conditions"`
	Stock      StockInfo      `json:"stock"`

	// Reward points, estimated at 1% of the corresponding price.
	NewPoints    *int `json:"newPoints,omitempty"`
	AmazonPoints *int `json:"amazonPoints,omitempty"`

	// Amazon.co.jp ships free for most listings; kept explicit so the
	// purchase planner can override per product.
	NewShipping    int `json:"newShipping"`
	AmazonShipping int `json:"amazonShipping"`

	UsedSellerCount *int `json:"usedSellerCount,omitempty"`
	AvgPrice30Days  *int `json:"avgPrice30Days,omitempty"`
	AvgPrice90Days  *int `json:"avgPrice90Days,omitempty"`
	AvgPrice180Days *int `json:"avgPrice180Days,omitempty"`

	DataSource  string    `json:"dataSource,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`

	Analysis *PriceAnalysis `json:"analysis,omitempty"`
}

// UsedConditions splits used prices per condition, with the
// fulfilled-by-Amazon variant alongside where the vendor tracks one.
type UsedConditions struct {
	LikeNew       *int `json:"likeNew,omitempty"`
	VeryGood      *int `json:"veryGood,omitempty"`
	Good          *int `json:"good,omitempty"`
	Acceptable    *int `json:"acceptable,omitempty"`
	NewFBA        *int `json:"newFBA,omitempty"`
	GoodFBA       *int `json:"goodFBA,omitempty"`
	AcceptableFBA *int `json:"acceptableFBA,omitempty"`
}

// StockInfo carries offer counts per condition plus the rating count.
type StockInfo struct {
	OfferCount     *int `json:"offerCount,omitempty"`
	NewOfferCount  *int `json:"newOfferCount,omitempty"`
	UsedOfferCount *int `json:"usedOfferCount,omitempty"`
	RatingCount    *int `json:"ratingCount,omitempty"`
}

// PriceAnalysis is the validator's annotation of extracted prices.
type PriceAnalysis struct {
	IsRecentData     bool     `json:"isRecentData"`
	PriceVariation   *float64 `json:"priceVariation,omitempty"` // % vs the 90-day average
	MarketComparison string   `json:"marketComparison"`
	ConfidenceLevel  string   `json:"confidenceLevel"` // high, medium, low
	Recommendations  []string `json:"recommendations"`
}

// AuctionData is the marketplace side of the comparison.
type AuctionData struct {
	AvgPrice        *int       `json:"avgPrice,omitempty"`
	SoldCount       *int       `json:"soldCount,omitempty"`
	ListingCount    *int       `json:"listingCount,omitempty"`
	HighestPrice    *int       `json:"highestPrice,omitempty"`
	RecentSoldItems []SoldItem `json:"recentSoldItems,omitempty"`
	LastUpdated     time.Time  `json:"lastUpdated"`
}

// SoldItem is one recently sold auction sample.
type SoldItem struct {
	Title      string    `json:"title"`
	Price      int       `json:"price"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	AuctionURL string    `json:"auctionUrl,omitempty"`
	EndDate    time.Time `json:"endDate"`
}

// ProfitAnalysis is the estimator's verdict. All derived fields are nil when
// either input price was absent.
type ProfitAnalysis struct {
	PotentialProfit          *float64 `json:"potentialProfit,omitempty"`
	ProfitRate               *float64 `json:"profitRate,omitempty"`
	IsProfitable             bool     `json:"isProfitable"`
	AmazonFees               *float64 `json:"amazonFees,omitempty"`
	AuctionFees              *float64 `json:"auctionFees,omitempty"`
	RecommendedPurchasePrice *int     `json:"recommendedPurchasePrice,omitempty"`
}

// Int and Float are pointer shorthands for optional fields.
func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }
