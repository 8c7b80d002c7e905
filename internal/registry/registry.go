// Package registry is the heart of the tool: it owns the set of tracked
// products, drives their fetch lifecycle, and keeps the on-disk snapshot in
// step with every mutation.
//
// A product moves pending -> loading -> success or error. Registering never
// fetches; data arrives only through Refresh, so adding fifty products from
// a CSV does not fire fifty API calls by surprise. Concurrent refreshes of
// the same product are allowed and resolve last-write-wins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"resalescout/internal/analysis"
	"resalescout/internal/model"
	"resalescout/internal/profit"
	"resalescout/internal/store"
)

// ErrNotFound is returned for unknown product IDs.
var ErrNotFound = errors.New("registry: product not found")

// AmazonSource supplies Amazon pricing for a validated ASIN.
type AmazonSource interface {
	Fetch(ctx context.Context, asin string) (*model.AmazonData, error)
}

// AuctionSource supplies sold-listing data for a keyword.
type AuctionSource interface {
	Search(ctx context.Context, keyword string) (*model.AuctionData, error)
}

// DefaultTargetRate is applied when a product is registered without one.
const DefaultTargetRate = 30.0

// freshEnough is how recent a successful fetch must be for GetOrRefresh to
// skip the network.
const freshEnough = time.Hour

// Registry holds the tracked products and the persistence and data sources
// they depend on.
type Registry struct {
	mu       sync.Mutex
	products map[string]*model.Product
	selected map[string]bool
	apiKey   string

	store   *store.Store
	amazon  AmazonSource
	auction AuctionSource
	logger  *log.Logger
}

// New builds a registry and rehydrates it from the snapshot store. The
// auction source may be nil for ASIN-only setups.
func New(st *store.Store, amazon AmazonSource, auction AuctionSource, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		products: make(map[string]*model.Product),
		selected: make(map[string]bool),
		store:    st,
		amazon:   amazon,
		auction:  auction,
		logger:   logger,
	}

	snap, err := st.Load()
	if err != nil {
		return nil, err
	}
	for i := range snap.Products {
		p := snap.Products[i]
		// A crash mid-fetch can persist a loading state; demote it so
		// the product is refreshable instead of stuck.
		if p.Status == model.StatusLoading {
			p.Status = model.StatusPending
		}
		r.products[p.ID] = &p
	}
	for _, id := range snap.SelectedIDs {
		if _, ok := r.products[id]; ok {
			r.selected[id] = true
		}
	}
	r.apiKey = store.DecodeKey(snap.APIKey)
	return r, nil
}

// Register adds a product in the pending state. At least one of asin or
// keyword must be set. No fetch happens here.
func (r *Registry) Register(name, asin, keyword string, targetRate float64, maxPurchasePrice *int) (*model.Product, error) {
	if asin != "" {
		normalized, err := model.NormalizeASIN(asin)
		if err != nil {
			return nil, err
		}
		asin = normalized
	}
	if asin == "" && keyword == "" {
		return nil, fmt.Errorf("registry: product needs an ASIN or a search keyword")
	}
	if name == "" {
		name = keyword
	}
	if name == "" {
		name = asin
	}
	if targetRate <= 0 {
		targetRate = DefaultTargetRate
	}

	now := time.Now()
	p := &model.Product{
		ID:               uuid.NewString(),
		Name:             name,
		ASIN:             asin,
		Keyword:          keyword,
		TargetProfitRate: targetRate,
		Status:           model.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if maxPurchasePrice != nil && *maxPurchasePrice > 0 {
		p.MaxPurchasePrice = model.Int(*maxPurchasePrice)
	}

	r.mu.Lock()
	r.products[p.ID] = p
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return nil, err
	}
	return snapshotOf(p), nil
}

// Get returns a copy of one product.
func (r *Registry) Get(id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshotOf(p), nil
}

// List returns copies of all products, oldest registration first.
func (r *Registry) List() []*model.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, snapshotOf(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove deletes a product and drops it from the selection.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.products[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.products, id)
	delete(r.selected, id)
	r.mu.Unlock()
	return r.save()
}

// Update mutates the editable fields of a product. Changing the ASIN or
// keyword resets fetched data, since it now describes a different item.
type Update struct {
	Name             *string
	ASIN             *string
	Keyword          *string
	TargetProfitRate *float64
	MaxPurchasePrice *int
}

// Apply updates a product in place and persists the result.
func (r *Registry) Apply(id string, u Update) (*model.Product, error) {
	r.mu.Lock()
	p, ok := r.products[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}

	if u.ASIN != nil && *u.ASIN != p.ASIN {
		normalized := ""
		if *u.ASIN != "" {
			var err error
			normalized, err = model.NormalizeASIN(*u.ASIN)
			if err != nil {
				r.mu.Unlock()
				return nil, err
			}
		}
		p.ASIN = normalized
		p.Amazon = nil
		p.Profit = nil
		p.Status = model.StatusPending
	}
	if u.Keyword != nil && *u.Keyword != p.Keyword {
		p.Keyword = *u.Keyword
		p.Auction = nil
		p.Profit = nil
		if p.Status == model.StatusSuccess {
			p.Status = model.StatusPending
		}
	}
	if u.Name != nil && *u.Name != "" {
		p.Name = *u.Name
	}
	if u.TargetProfitRate != nil && *u.TargetProfitRate > 0 {
		p.TargetProfitRate = *u.TargetProfitRate
	}
	if u.MaxPurchasePrice != nil {
		if *u.MaxPurchasePrice > 0 {
			p.MaxPurchasePrice = model.Int(*u.MaxPurchasePrice)
		} else {
			p.MaxPurchasePrice = nil
		}
	}
	p.UpdatedAt = time.Now()
	result := snapshotOf(p)
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return nil, err
	}
	return result, nil
}

// Refresh fetches current data for one product. The product shows loading
// while the fetch runs; it always lands in success or error afterwards.
// When two refreshes race, the one finishing last owns the final state.
func (r *Registry) Refresh(ctx context.Context, id string) (*model.Product, error) {
	r.mu.Lock()
	p, ok := r.products[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	asin, keyword, targetRate := p.ASIN, p.Keyword, p.TargetProfitRate
	p.Status = model.StatusLoading
	p.Error = ""
	p.UpdatedAt = time.Now()
	r.mu.Unlock()

	amazonData, auctionData, fetchErr := r.fetch(ctx, asin, keyword)

	r.mu.Lock()
	p, ok = r.products[id]
	if !ok {
		// Removed while the fetch was in flight.
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if fetchErr != nil {
		p.Status = model.StatusError
		p.Error = fetchErr.Error()
		p.UpdatedAt = time.Now()
		result := snapshotOf(p)
		r.mu.Unlock()
		r.logger.Printf("refresh %s failed: %v", id, fetchErr)
		if err := r.save(); err != nil {
			return nil, err
		}
		return result, nil
	}

	if amazonData != nil {
		amazonData.Analysis = analysis.Validate(amazonData, time.Now())
		p.Amazon = amazonData
	}
	if auctionData != nil {
		p.Auction = auctionData
	}
	p.Profit = estimate(p, targetRate)
	p.Status = model.StatusSuccess
	p.Error = ""
	p.UpdatedAt = time.Now()
	result := snapshotOf(p)
	r.mu.Unlock()

	if err := r.save(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrRefresh returns the cached product when its data is fresh, and
// refreshes otherwise.
func (r *Registry) GetOrRefresh(ctx context.Context, id string) (*model.Product, error) {
	r.mu.Lock()
	p, ok := r.products[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if p.Status == model.StatusSuccess && p.Amazon != nil &&
		time.Since(p.Amazon.LastUpdated) < freshEnough {
		result := snapshotOf(p)
		r.mu.Unlock()
		return result, nil
	}
	r.mu.Unlock()
	return r.Refresh(ctx, id)
}

// RefreshAll refreshes every product sequentially through the queue,
// keeping API usage inside the rate limit. Per-product failures are
// recorded on the product and returned; they do not stop the run.
func (r *Registry) RefreshAll(ctx context.Context, q *Queue) map[string]error {
	ids := make([]string, 0)
	for _, p := range r.List() {
		ids = append(ids, p.ID)
	}
	return q.Run(ctx, ids, r.refreshOne)
}

// RefreshSelected refreshes only the selected products, then clears the
// selection and persists the clear. The selection is a one-shot work list:
// once the comparison run has happened it has served its purpose, whether
// or not individual products failed.
func (r *Registry) RefreshSelected(ctx context.Context, q *Queue) map[string]error {
	failures := q.Run(ctx, r.Selected(), r.refreshOne)

	r.mu.Lock()
	r.selected = make(map[string]bool)
	r.mu.Unlock()
	if err := r.save(); err != nil {
		r.logger.Printf("persist selection clear: %v", err)
	}
	return failures
}

func (r *Registry) refreshOne(ctx context.Context, id string) error {
	p, err := r.Refresh(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == model.StatusError {
		return errors.New(p.Error)
	}
	return nil
}

// Select marks or unmarks a product for the comparison view.
func (r *Registry) Select(id string, on bool) error {
	r.mu.Lock()
	if _, ok := r.products[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if on {
		r.selected[id] = true
	} else {
		delete(r.selected, id)
	}
	r.mu.Unlock()
	return r.save()
}

// Selected returns the selected product IDs in list order.
func (r *Registry) Selected() []string {
	r.mu.Lock()
	sel := make(map[string]bool, len(r.selected))
	for id := range r.selected {
		sel[id] = true
	}
	r.mu.Unlock()

	var out []string
	for _, p := range r.List() {
		if sel[p.ID] {
			out = append(out, p.ID)
		}
	}
	return out
}

// SetAPIKey stores the API key in the snapshot. The caller rebuilds its
// clients with the new key.
func (r *Registry) SetAPIKey(key string) error {
	r.mu.Lock()
	r.apiKey = key
	r.mu.Unlock()
	return r.save()
}

// APIKey returns the stored key, or empty when none is configured.
func (r *Registry) APIKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apiKey
}

func (r *Registry) fetch(ctx context.Context, asin, keyword string) (*model.AmazonData, *model.AuctionData, error) {
	var amazonData *model.AmazonData
	var auctionData *model.AuctionData

	if asin != "" {
		if r.amazon == nil {
			return nil, nil, fmt.Errorf("registry: no Amazon source configured")
		}
		data, err := r.amazon.Fetch(ctx, asin)
		if err != nil {
			return nil, nil, fmt.Errorf("amazon fetch: %w", err)
		}
		amazonData = data
	}
	if keyword != "" && r.auction != nil {
		data, err := r.auction.Search(ctx, keyword)
		if err != nil {
			// Auction data is supplementary; a miss degrades the
			// product rather than failing the whole refresh.
			r.logger.Printf("auction search %q failed: %v", keyword, err)
		} else {
			auctionData = data
		}
	}
	return amazonData, auctionData, nil
}

// estimate recomputes the profit verdict from whatever data the product
// currently has. Caller holds the lock.
func estimate(p *model.Product, targetRate float64) *model.ProfitAnalysis {
	var amazonPrice, auctionPrice *int
	if p.Amazon != nil {
		amazonPrice = p.Amazon.UsedPrice
		if amazonPrice == nil {
			amazonPrice = p.Amazon.NewPrice
		}
	}
	if p.Auction != nil {
		auctionPrice = p.Auction.AvgPrice
	}
	return profit.Estimate(amazonPrice, auctionPrice, targetRate)
}

// save persists the current state. Caller must NOT hold the lock.
func (r *Registry) save() error {
	r.mu.Lock()
	snap := &store.Snapshot{
		Products:    make([]model.Product, 0, len(r.products)),
		SelectedIDs: make([]string, 0, len(r.selected)),
		APIKey:      store.EncodeKey(r.apiKey),
	}
	for _, p := range r.products {
		snap.Products = append(snap.Products, *snapshotOf(p))
	}
	sort.Slice(snap.Products, func(i, j int) bool {
		return snap.Products[i].CreatedAt.Before(snap.Products[j].CreatedAt)
	})
	for id := range r.selected {
		snap.SelectedIDs = append(snap.SelectedIDs, id)
	}
	sort.Strings(snap.SelectedIDs)
	r.mu.Unlock()

	return r.store.Save(snap)
}

// snapshotOf hands out an isolated copy so callers cannot mutate registry
// state through returned pointers.
func snapshotOf(p *model.Product) *model.Product {
	return p.Clone()
}
