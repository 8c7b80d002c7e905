// Package scrape pulls product data straight off amazon.co.jp pages. It is
// the fallback source for when no API key is configured; the numbers are
// less complete than the API's (no averages, no per-condition breakdown)
// and are marked as scraped so the analyzer can weigh them accordingly.
package scrape

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"resalescout/internal/model"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// priceSelectors is the cascade tried in order; Amazon has shipped every
// one of these across page generations.
var priceSelectors = []string{
	"#corePrice_feature_div .a-price .a-offscreen",
	".a-price .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#price_inside_buybox",
}

var (
	numberPattern = regexp.MustCompile(`[0-9,]+`)
	rankPattern   = regexp.MustCompile(`([0-9,]+)\s*位`)
)

// Scraper fetches and parses amazon.co.jp product pages.
type Scraper struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// Config controls the scraper. RequestsPerMinute should stay conservative;
// Amazon throttles aggressive clients by IP.
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	RequestsPerMinute int
}

// New builds a scraper with defaults for zero values.
func New(cfg Config) *Scraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.amazon.co.jp"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 10
	}
	return &Scraper{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}
}

// Fetch retrieves the product page for an ASIN and extracts what it can.
func (s *Scraper) Fetch(ctx context.Context, asin string) (*model.AmazonData, error) {
	normalized, err := model.NormalizeASIN(asin)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/dp/"+normalized, nil)
	if err != nil {
		return nil, fmt.Errorf("scrape: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "ja-JP,ja;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("scrape: no page for ASIN %s", normalized)
	case resp.StatusCode == http.StatusServiceUnavailable:
		// Amazon serves 503 with a robot-check page when throttling.
		return nil, fmt.Errorf("scrape: throttled by amazon (HTTP 503)")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("scrape: unexpected HTTP %d", resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("scrape: decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse page: %w", err)
	}
	return extract(doc), nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

func extract(doc *goquery.Document) *model.AmazonData {
	data := &model.AmazonData{
		Title:       strings.TrimSpace(doc.Find("#productTitle").First().Text()),
		DataSource:  "scrape",
		LastUpdated: time.Now(),
	}

	if src, ok := doc.Find("#landingImage").First().Attr("src"); ok {
		data.ImageURL = src
	}

	for _, sel := range priceSelectors {
		if price := parseYen(doc.Find(sel).First().Text()); price != nil {
			data.NewPrice = price
			break
		}
	}

	// The sales rank lives in free text inside the detail tables, in the
	// form "家電&カメラ - 1,280位".
	doc.Find("#productDetails_detailBullets_sections1 td, #detailBulletsWrapper_feature_div li").EachWithBreak(
		func(i int, sel *goquery.Selection) bool {
			if m := rankPattern.FindStringSubmatch(sel.Text()); m != nil {
				if rank := parseNumber(m[1]); rank != nil && *rank > 0 {
					data.SalesRank = rank
					return false
				}
			}
			return true
		})

	return data
}

// parseYen reads strings like "￥15,800" or "15,800円".
func parseYen(text string) *int {
	v := parseNumber(numberPattern.FindString(text))
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func parseNumber(text string) *int {
	if text == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(text, ",", ""))
	if err != nil {
		return nil
	}
	return model.Int(n)
}
