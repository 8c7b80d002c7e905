package report

import (
	"strconv"
	"strings"
)

// formulaPrefixes are cell openings that spreadsheets interpret as code.
// Product names and auction titles come from outside and end up in files
// users open in Excel, so every exported cell is escaped.
const formulaPrefixes = "=+-@|%\t\r\n"

// SafeCell neutralizes spreadsheet formula injection by prefixing risky
// cells with a single quote. Plain numbers are exempt: a leading minus on
// a negative profit is data, and quoting it would break numeric parsing on
// re-import.
func SafeCell(value string) string {
	if value == "" {
		return value
	}
	if strings.IndexByte(formulaPrefixes, value[0]) < 0 {
		return value
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	return "'" + value
}

// SafeRow applies SafeCell to every cell.
func SafeRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = SafeCell(cell)
	}
	return out
}
