// Package auction abstracts sold-listing data sources for Japanese auction
// marketplaces. The real sites have no public API, so callers work against
// the Provider interface and the concrete source is chosen at startup.
package auction

import (
	"context"
	"time"

	"resalescout/internal/model"
)

// Provider supplies recent sold-listing statistics for a search keyword.
type Provider interface {
	// Available reports whether the provider is configured and reachable.
	Available() bool

	// Search returns aggregated sold-listing data for the keyword.
	Search(ctx context.Context, keyword string) (*model.AuctionData, error)

	// GetProviderName identifies the provider in logs and exports.
	GetProviderName() string
}

// Config holds settings shared by auction providers.
type Config struct {
	RequestTimeout time.Duration
	MaxResults     int
}

// NewProvider picks the concrete provider. Only the deterministic local
// provider exists today; scraping providers slot in here once their terms
// of use are settled.
func NewProvider(cfg Config) Provider {
	return NewMockProvider(cfg)
}
