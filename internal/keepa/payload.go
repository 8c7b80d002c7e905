package keepa

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the vendor reported zero matching products.
	ErrNotFound = errors.New("keepa: no matching product")

	// ErrMalformedPayload means the response was structurally broken, as
	// opposed to structurally sound but carrying no data.
	ErrMalformedPayload = errors.New("keepa: malformed payload")
)

// Payload is the top-level Keepa product response.
type Payload struct {
	Products []ProductPayload `json:"products"`
}

// ProductPayload is one product entry. CSV holds per-series flat
// (timestamp, value) sequences in chronological order; Stats holds the
// current snapshot and rolling averages per series.
type ProductPayload struct {
	ASIN         string     `json:"asin"`
	Title        string     `json:"title"`
	ImagesCSV    string     `json:"imagesCSV"`
	CSV          [][]int    `json:"csv"`
	Stats        *Stats     `json:"stats"`
	Offers       []Offer    `json:"offers"`
	CategoryTree []Category `json:"categoryTree"`
	Manufacturer string     `json:"manufacturer"`
	Model        string     `json:"model"`
	EANList      []string   `json:"eanList"`
}

// Stats values are indexed by the same series keys as CSV, expressed in
// hundredths of a yen.
type Stats struct {
	Current []int `json:"current"`
	Avg30   []int `json:"avg30"`
	Avg90   []int `json:"avg90"`
	Avg180  []int `json:"avg180"`
}

// Offer is one live marketplace offer. Price and Shipping are in hundredths
// of a yen; LastSeen is a millisecond epoch timestamp.
type Offer struct {
	Condition int   `json:"condition"`
	Price     int   `json:"price"`
	Shipping  int   `json:"shipping"`
	Prime     bool  `json:"prime"`
	FBA       bool  `json:"fba"`
	LastSeen  int64 `json:"lastSeen"`
}

type Category struct {
	CatID int64  `json:"catId"`
	Name  string `json:"name"`
}

// ParsePayload decodes and validates a raw Keepa response. It fails fast
// with ErrMalformedPayload for structurally broken documents, and with
// ErrNotFound when the products array is absent or empty. A product with
// empty series arrays parses fine; that is "no data", not malformed.
func ParsePayload(data []byte) (*ProductPayload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(payload.Products) == 0 {
		return nil, ErrNotFound
	}
	product := &payload.Products[0]
	if product.Title == "" {
		return nil, fmt.Errorf("%w: product missing title", ErrMalformedPayload)
	}
	return product, nil
}
