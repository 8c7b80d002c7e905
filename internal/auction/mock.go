package auction

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"resalescout/internal/model"
)

// MockProvider generates plausible sold-listing data derived entirely from
// the keyword, so repeated searches return identical results. It stands in
// for real auction sources in development and tests.
type MockProvider struct {
	cfg Config
}

// NewMockProvider builds the deterministic provider.
func NewMockProvider(cfg Config) *MockProvider {
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}
	return &MockProvider{cfg: cfg}
}

// Available always reports true.
func (m *MockProvider) Available() bool {
	return true
}

// GetProviderName returns the provider name.
func (m *MockProvider) GetProviderName() string {
	return "MockAuctionProvider"
}

// Search derives a stable price band from the keyword hash. Prices land in
// the few-thousand to few-ten-thousand yen range typical of resale stock.
func (m *MockProvider) Search(ctx context.Context, keyword string) (*model.AuctionData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keyword == "" {
		return nil, fmt.Errorf("auction: empty search keyword")
	}

	seed := keywordSeed(keyword)
	base := 3000 + int(seed%27000)
	soldCount := 3 + int(seed%18)
	listingCount := 1 + int(seed%12)

	items := make([]model.SoldItem, 0, m.cfg.MaxResults)
	for i := 0; i < m.cfg.MaxResults; i++ {
		// Spread prices around the base in stable steps.
		offset := (int(seed>>uint(i%8)) % 20) - 10
		price := base + base*offset/100
		items = append(items, model.SoldItem{
			Title:      fmt.Sprintf("%s 中古 動作品 #%d", keyword, i+1),
			Price:      price,
			EndDate:    time.Now().AddDate(0, 0, -(i + 1)),
			AuctionURL: fmt.Sprintf("https://auctions.example.jp/item/%d%d", seed%100000, i),
		})
	}

	highest := 0
	total := 0
	for _, item := range items {
		total += item.Price
		if item.Price > highest {
			highest = item.Price
		}
	}
	avg := total / len(items)

	return &model.AuctionData{
		AvgPrice:        model.Int(avg),
		SoldCount:       model.Int(soldCount),
		ListingCount:    model.Int(listingCount),
		HighestPrice:    model.Int(highest),
		RecentSoldItems: items,
		LastUpdated:     time.Now(),
	}, nil
}

func keywordSeed(keyword string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(keyword))
	return h.Sum32()
}
