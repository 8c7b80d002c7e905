// Package report writes the registry out as CSV for spreadsheets and JSON
// for backup or machine use.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"resalescout/internal/analysis"
	"resalescout/internal/history"
	"resalescout/internal/model"
)

// csvHeader is the fixed column set. Trend columns stay empty when no
// history database is wired in.
var csvHeader = []string{
	"Name", "ASIN", "Keyword",
	"AmazonUsed", "AmazonNew", "SalesRank",
	"AuctionAvg", "AuctionSold",
	"Profit", "ProfitRate", "Recommended",
	"TargetRate", "Confidence", "Trend", "Change7d", "Volatility",
	"Status", "UpdatedAt",
}

// ExportCSV writes one row per product. trends may be nil.
func ExportCSV(w io.Writer, products []*model.Product, trends map[string]analysis.Trend) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}
	for _, p := range products {
		row := productRow(p, trends)
		if err := cw.Write(SafeRow(row)); err != nil {
			return fmt.Errorf("report: write row for %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	return nil
}

func productRow(p *model.Product, trends map[string]analysis.Trend) []string {
	row := []string{
		p.Name, p.ASIN, p.Keyword,
		intCell(amazonField(p, func(a *model.AmazonData) *int { return a.UsedPrice })),
		intCell(amazonField(p, func(a *model.AmazonData) *int { return a.NewPrice })),
		intCell(amazonField(p, func(a *model.AmazonData) *int { return a.SalesRank })),
	}

	if p.Auction != nil {
		row = append(row, intCell(p.Auction.AvgPrice), intCell(p.Auction.SoldCount))
	} else {
		row = append(row, "", "")
	}

	if p.Profit != nil {
		row = append(row,
			floatCell(p.Profit.PotentialProfit, 0),
			floatCell(p.Profit.ProfitRate, 1),
			intCell(p.Profit.RecommendedPurchasePrice),
		)
	} else {
		row = append(row, "", "", "")
	}

	row = append(row, strconv.FormatFloat(p.TargetProfitRate, 'f', 1, 64))

	confidence := ""
	if p.Amazon != nil && p.Amazon.Analysis != nil {
		confidence = p.Amazon.Analysis.ConfidenceLevel
	}
	row = append(row, confidence)

	if trend, ok := trends[p.ID]; ok {
		row = append(row, trend.Direction, floatCell(trend.Change7d, 1),
			strconv.FormatFloat(trend.Volatility, 'f', 1, 64))
	} else {
		row = append(row, "", "", "")
	}

	updated := ""
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt.Format(time.RFC3339)
	}
	return append(row, string(p.Status), updated)
}

func amazonField(p *model.Product, pick func(*model.AmazonData) *int) *int {
	if p.Amazon == nil {
		return nil
	}
	return pick(p.Amazon)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatCell(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

// backup is the JSON export envelope.
type backup struct {
	ExportedAt time.Time                     `json:"exportedAt"`
	Products   []*model.Product              `json:"products"`
	History    map[string][]history.Snapshot `json:"history,omitempty"`
}

// ExportJSON writes the full product set as indented JSON, suitable for
// re-import. histories maps product IDs to their stored observations and
// may be nil when no history database is wired in.
func ExportJSON(w io.Writer, products []*model.Product, histories map[string][]history.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(backup{ExportedAt: time.Now(), Products: products, History: histories}); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}
