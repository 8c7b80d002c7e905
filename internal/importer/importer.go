// Package importer bulk-loads products from CSV. Each data row becomes one
// registration; bad rows are collected as messages rather than aborting the
// file, so a fifty-row import with two typos still lands forty-eight
// products.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"resalescout/internal/model"
	"resalescout/internal/registry"
)

// Expected columns, by header name. Only name plus one of asin/keyword is
// required; the rest default.
var knownColumns = map[string]int{
	"name":             -1,
	"asin":             -1,
	"keyword":          -1,
	"targetprofitrate": -1,
	"maxpurchaseprice": -1,
}

// Result summarizes one import run.
type Result struct {
	Added  int
	Errors []string
}

// Import reads CSV rows and registers each one. The first row must be a
// header naming at least the name column.
func Import(r io.Reader, reg *registry.Registry) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := importRow(record, cols, reg); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Added++
	}
	return result, nil
}

func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(knownColumns))
	for name := range knownColumns {
		cols[name] = -1
	}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[key]; ok {
			cols[key] = i
		}
	}
	if cols["name"] < 0 && cols["asin"] < 0 && cols["keyword"] < 0 {
		return nil, fmt.Errorf("importer: header has none of name, asin, keyword: %v", header)
	}
	return cols, nil
}

func importRow(record []string, cols map[string]int, reg *registry.Registry) error {
	cell := func(key string) string {
		i := cols[key]
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	name := cell("name")
	asin := cell("asin")
	keyword := cell("keyword")

	targetRate := 0.0
	if raw := cell("targetprofitrate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("bad target profit rate %q", raw)
		}
		if v <= 0 {
			return fmt.Errorf("target profit rate %q must be positive", raw)
		}
		targetRate = v
	}

	var maxPrice *int
	if raw := cell("maxpurchaseprice"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("bad max purchase price %q", raw)
		}
		maxPrice = model.Int(v)
	}

	_, err := reg.Register(name, asin, keyword, targetRate, maxPrice)
	return err
}
