package keepa

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"resalescout/internal/model"
)

// Series addresses one tracked (condition x fulfillment) time series in the
// CSV payload. The index->meaning mapping is fixed vendor metadata; keys not
// listed here have no fulfillment variant and must not be invented.
type Series int

const (
	SeriesAmazon            Series = 0
	SeriesNew               Series = 1
	SeriesUsed              Series = 2
	SeriesSalesRank         Series = 3
	SeriesNewFBA            Series = 10
	SeriesOfferCount        Series = 11
	SeriesNewOfferCount     Series = 12
	SeriesUsedOfferCount    Series = 13
	SeriesRatingCount       Series = 14
	SeriesUsedAcceptable    Series = 17
	SeriesUsedGoodFBA       Series = 18
	SeriesUsedAcceptableFBA Series = 19
	SeriesUsedVeryGood      Series = 20
	SeriesUsedGood          Series = 21
)

type seriesKind int

const (
	kindPrice seriesKind = iota
	kindCount
	kindRank
)

// Values above these are assumed to be misaligned data (a timestamp read
// where a price belongs) and are skipped.
const (
	priceCeiling = 1_000_000
	countCeiling = 100_000
)

const noDataSentinel = -1

var seriesTable = map[Series]seriesKind{
	SeriesAmazon:            kindPrice,
	SeriesNew:               kindPrice,
	SeriesUsed:              kindPrice,
	SeriesSalesRank:         kindRank,
	SeriesNewFBA:            kindPrice,
	SeriesOfferCount:        kindCount,
	SeriesNewOfferCount:     kindCount,
	SeriesUsedOfferCount:    kindCount,
	SeriesRatingCount:       kindCount,
	SeriesUsedAcceptable:    kindPrice,
	SeriesUsedGoodFBA:       kindPrice,
	SeriesUsedAcceptableFBA: kindPrice,
	SeriesUsedVeryGood:      kindPrice,
	SeriesUsedGood:          kindPrice,
}

const placeholderImageURL = "https://via.placeholder.com/96x96?text=No+Image"

const imageBaseURL = "https://images-na.ssl-images-amazon.com/images/I/"

// validValue reports whether v is a usable reading for the given kind.
func validValue(v int, kind seriesKind) bool {
	if v == noDataSentinel {
		return false
	}
	switch kind {
	case kindPrice:
		return v > 0 && v <= priceCeiling
	case kindCount:
		return v >= 0 && v <= countCeiling
	default: // rank
		return v > 0
	}
}

// LatestValue scans one series from the end toward the start, one
// (timestamp, value) pair at a time, and returns the first value passing
// validity. ok is false when the series is missing, empty, or holds no valid
// reading. An unknown series key is a caller bug and panics.
func LatestValue(p *ProductPayload, s Series) (value int, ok bool) {
	kind, known := seriesTable[s]
	if !known {
		panic(fmt.Sprintf("keepa: unknown series key %d", s))
	}
	if p == nil || int(s) >= len(p.CSV) {
		return 0, false
	}
	data := p.CSV[s]
	for i := len(data) - 2; i >= 0; i -= 2 {
		if v := data[i+1]; validValue(v, kind) {
			return v, true
		}
	}
	return 0, false
}

// StatValue reads one series slot out of a stats array, converting from
// hundredths of a yen to whole yen. Returns nil for sentinel or out-of-range
// values.
func StatValue(stats []int, s Series) *int {
	if _, known := seriesTable[s]; !known {
		panic(fmt.Sprintf("keepa: unknown series key %d", s))
	}
	if int(s) >= len(stats) {
		return nil
	}
	v := stats[s]
	if v == noDataSentinel || v <= 0 {
		return nil
	}
	yen := v / 100
	if yen <= 0 || yen > priceCeiling {
		return nil
	}
	return model.Int(yen)
}

// ImageURL builds the primary image URL from the comma-joined identifier
// list. Malformed or missing identifiers fall back to a placeholder; the
// result is never empty.
func ImageURL(imagesCSV string) string {
	id := strings.SplitN(imagesCSV, ",", 2)[0]
	if len(id) <= 5 {
		return placeholderImageURL
	}
	return imageBaseURL + id
}

// BestUsedOffer picks the cheapest landed (price + shipping) used offer,
// preferring offers seen within the last hour, then the last day, then any.
// Prices convert from hundredths to whole yen. Returns the landed price, the
// number of offers in the chosen tier, and whether the tier was the fresh one.
func BestUsedOffer(offers []Offer, now time.Time) (price *int, sellers int, fresh bool) {
	var used []Offer
	for _, o := range offers {
		if o.Condition >= 1 && o.Condition <= 4 && o.Price > 0 {
			used = append(used, o)
		}
	}
	if len(used) == 0 {
		return nil, 0, false
	}

	tiers := []struct {
		cutoff time.Time
		fresh  bool
	}{
		{now.Add(-time.Hour), true},
		{now.Add(-24 * time.Hour), false},
		{time.Time{}, false},
	}
	for _, tier := range tiers {
		var candidates []Offer
		for _, o := range used {
			if time.UnixMilli(o.LastSeen).After(tier.cutoff) {
				candidates = append(candidates, o)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Price+candidates[i].Shipping < candidates[j].Price+candidates[j].Shipping
		})
		best := candidates[0]
		yen := (best.Price + best.Shipping) / 100
		if yen <= 0 || yen > priceCeiling {
			return nil, 0, false
		}
		return model.Int(yen), len(candidates), tier.fresh
	}
	return nil, 0, false
}

// Extract assembles an AmazonData record from one parsed payload. A payload
// with zero tracked series yields a record with every optional field nil
// rather than an error.
func Extract(p *ProductPayload, now time.Time) *model.AmazonData {
	data := &model.AmazonData{
		Title:        p.Title,
		Manufacturer: p.Manufacturer,
		Model:        p.Model,
		ImageURL:     ImageURL(p.ImagesCSV),
		LastUpdated:  now,
		DataSource:   "keepa",
	}
	if len(p.CategoryTree) > 0 {
		data.Category = p.CategoryTree[0].Name
	}
	if len(p.EANList) > 0 {
		data.JAN = p.EANList[0]
	}

	data.AmazonPrice = latestPtr(p, SeriesAmazon)
	data.NewPrice = latestPtr(p, SeriesNew)
	data.SalesRank = latestPtr(p, SeriesSalesRank)

	data.Conditions = model.UsedConditions{
		Acceptable:    latestPtr(p, SeriesUsedAcceptable),
		Good:          latestPtr(p, SeriesUsedGood),
		VeryGood:      latestPtr(p, SeriesUsedVeryGood),
		NewFBA:        latestPtr(p, SeriesNewFBA),
		GoodFBA:       latestPtr(p, SeriesUsedGoodFBA),
		AcceptableFBA: latestPtr(p, SeriesUsedAcceptableFBA),
	}
	data.Stock = model.StockInfo{
		OfferCount:     latestPtr(p, SeriesOfferCount),
		NewOfferCount:  latestPtr(p, SeriesNewOfferCount),
		UsedOfferCount: latestPtr(p, SeriesUsedOfferCount),
		RatingCount:    latestPtr(p, SeriesRatingCount),
	}

	if p.Stats != nil {
		data.AvgPrice30Days = StatValue(p.Stats.Avg30, SeriesUsed)
		data.AvgPrice90Days = StatValue(p.Stats.Avg90, SeriesUsed)
		data.AvgPrice180Days = StatValue(p.Stats.Avg180, SeriesUsed)
	}

	// Used price priority: current stats snapshot, then the freshest live
	// offer, then the historical series, then the rolling averages.
	if p.Stats != nil {
		if v := StatValue(p.Stats.Current, SeriesUsed); v != nil {
			data.UsedPrice = v
			data.UsedSellerCount = model.Int(1)
			data.DataSource = "keepa:stats"
		}
	}
	if data.UsedPrice == nil {
		if price, sellers, _ := BestUsedOffer(p.Offers, now); price != nil {
			data.UsedPrice = price
			data.UsedSellerCount = model.Int(sellers)
			data.DataSource = "keepa:offers"
		}
	}
	if data.UsedPrice == nil {
		if v := latestPtr(p, SeriesUsed); v != nil {
			data.UsedPrice = v
			data.UsedSellerCount = model.Int(1)
			data.DataSource = "keepa:history"
		}
	}
	if data.UsedPrice == nil {
		switch {
		case data.AvgPrice30Days != nil:
			data.UsedPrice = data.AvgPrice30Days
			data.DataSource = "keepa:avg30"
		case data.AvgPrice90Days != nil:
			data.UsedPrice = data.AvgPrice90Days
			data.DataSource = "keepa:avg90"
		}
	}

	if data.NewPrice != nil {
		data.NewPoints = model.Int(*data.NewPrice / 100)
	}
	if data.AmazonPrice != nil {
		data.AmazonPoints = model.Int(*data.AmazonPrice / 100)
	}

	return data
}

func latestPtr(p *ProductPayload, s Series) *int {
	if v, ok := LatestValue(p, s); ok {
		return model.Int(v)
	}
	return nil
}
