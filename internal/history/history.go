// Package history stores periodic price observations in SQLite so trends
// survive restarts. One row per product per collection run; rows older than
// the retention window are pruned on every insert batch.
package history

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"resalescout/internal/analysis"
	"resalescout/internal/model"
)

// RetentionDays is how long observations are kept.
const RetentionDays = 30

// Snapshot is one stored observation. The JSON tags shape the backup
// export; the row ID is storage detail and stays out of it.
type Snapshot struct {
	ID         int64     `db:"id" json:"-"`
	ProductID  string    `db:"product_id" json:"productId"`
	ASIN       string    `db:"asin" json:"asin,omitempty"`
	UsedPrice  *int      `db:"used_price" json:"usedPrice,omitempty"`
	NewPrice   *int      `db:"new_price" json:"newPrice,omitempty"`
	SalesRank  *int      `db:"sales_rank" json:"salesRank,omitempty"`
	CapturedAt time.Time `db:"captured_at" json:"capturedAt"`
}

// DB wraps the snapshot table.
type DB struct {
	db *sqlx.DB
}

// Open connects to the SQLite file at dsn and ensures the schema exists.
func Open(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS price_snapshots(
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  product_id  TEXT NOT NULL,
  asin        TEXT NOT NULL DEFAULT '',
  used_price  INTEGER,
  new_price   INTEGER,
  sales_rank  INTEGER,
  captured_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON price_snapshots(product_id, captured_at);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Record stores one observation for a product. Products without any Amazon
// data record a rank-only row so collection gaps stay visible.
func (d *DB) Record(p *model.Product, capturedAt time.Time) error {
	var used, newPrice, rank *int
	if p.Amazon != nil {
		used = p.Amazon.UsedPrice
		newPrice = p.Amazon.NewPrice
		rank = p.Amazon.SalesRank
	}
	_, err := d.db.Exec(`
  INSERT INTO price_snapshots(product_id, asin, used_price, new_price, sales_rank, captured_at)
  VALUES (?, ?, ?, ?, ?, ?)
`, p.ID, p.ASIN, used, newPrice, rank, capturedAt.UTC())
	if err != nil {
		return fmt.Errorf("history: record %s: %w", p.ID, err)
	}
	return nil
}

// ForProduct returns the observations for one product inside the retention
// window, oldest first.
func (d *DB) ForProduct(productID string) ([]Snapshot, error) {
	var out []Snapshot
	err := d.db.Select(&out, `
  SELECT id, product_id, asin, used_price, new_price, sales_rank, captured_at
  FROM price_snapshots
  WHERE product_id = ?
  ORDER BY captured_at ASC
`, productID)
	if err != nil {
		return nil, fmt.Errorf("history: load %s: %w", productID, err)
	}
	return out, nil
}

// Trend computes the price trend for one product from its stored used
// prices.
func (d *DB) Trend(productID string, now time.Time) (analysis.Trend, error) {
	snaps, err := d.ForProduct(productID)
	if err != nil {
		return analysis.Trend{}, err
	}
	points := make([]analysis.PricePoint, 0, len(snaps))
	for _, s := range snaps {
		if s.UsedPrice != nil {
			points = append(points, analysis.PricePoint{Price: *s.UsedPrice, CapturedAt: s.CapturedAt})
		}
	}
	return analysis.AnalyzeTrend(points, now), nil
}

// Prune deletes observations older than the retention window and rows
// belonging to products no longer registered.
func (d *DB) Prune(now time.Time, liveProductIDs []string) (int64, error) {
	cutoff := now.AddDate(0, 0, -RetentionDays).UTC()
	result, err := d.db.Exec(`DELETE FROM price_snapshots WHERE captured_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune by age: %w", err)
	}
	aged, _ := result.RowsAffected()

	if len(liveProductIDs) == 0 {
		return aged, nil
	}
	query, args, err := sqlx.In(`DELETE FROM price_snapshots WHERE product_id NOT IN (?)`, liveProductIDs)
	if err != nil {
		return aged, fmt.Errorf("history: build orphan prune: %w", err)
	}
	result, err = d.db.Exec(d.db.Rebind(query), args...)
	if err != nil {
		return aged, fmt.Errorf("history: prune orphans: %w", err)
	}
	orphaned, _ := result.RowsAffected()
	return aged + orphaned, nil
}

// Count returns the number of stored observations, for status output.
func (d *DB) Count() (int, error) {
	var n int
	if err := d.db.Get(&n, `SELECT COUNT(*) FROM price_snapshots`); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}
