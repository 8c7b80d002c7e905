package keepa

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"resalescout/internal/model"
)

var (
	// ErrMissingAPIKey is a configuration error; it is surfaced immediately
	// and never retried.
	ErrMissingAPIKey = errors.New("keepa: API key not configured")

	// ErrUnauthorized covers rejected or under-privileged API keys.
	ErrUnauthorized = errors.New("keepa: API key rejected")
)

// DomainJP selects the amazon.co.jp catalog.
const DomainJP = 5

// Config is passed in at construction; the client never reads ambient
// storage for its key.
type Config struct {
	APIKey  string
	Domain  int
	BaseURL string

	RequestTimeout time.Duration
	MaxRetries     int

	// OffersCount is the number of live offers requested per product.
	OffersCount int

	// RequestsPerMinute throttles outbound calls as a courtesy to the API.
	RequestsPerMinute int
}

// Client talks to the Keepa product endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New builds a client with defaults filled in for zero-valued settings.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.keepa.com"
	}
	if cfg.Domain == 0 {
		cfg.Domain = DomainJP
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.OffersCount == 0 {
		cfg.OffersCount = 50
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 20
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 2),
	}
}

// Available reports whether the client is configured with a key.
func (c *Client) Available() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Product fetches and parses the payload for one validated ASIN.
func (c *Client) Product(ctx context.Context, asin string) (*ProductPayload, error) {
	body, err := c.Raw(ctx, asin)
	if err != nil {
		return nil, err
	}
	return ParsePayload(body)
}

// Fetch retrieves a product and flattens the payload into display data.
func (c *Client) Fetch(ctx context.Context, asin string) (*model.AmazonData, error) {
	payload, err := c.Product(ctx, asin)
	if err != nil {
		return nil, err
	}
	return Extract(payload, time.Now()), nil
}

// Raw fetches the undecoded response body, retrying transient failures with
// exponential backoff. Configuration and not-found errors abort immediately.
func (c *Client) Raw(ctx context.Context, asin string) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * time.Second
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.fetch(ctx, asin)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("keepa: giving up after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// transientError marks server-side failures worth retrying.
type transientError struct {
	status int
}

func (e *transientError) Error() string {
	return fmt.Sprintf("keepa: transient API error (HTTP %d)", e.status)
}

func retryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *Client) fetch(ctx context.Context, asin string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("key", c.cfg.APIKey)
	query.Set("domain", strconv.Itoa(c.cfg.Domain))
	query.Set("asin", asin)
	query.Set("stats", "1")
	query.Set("rating", "1")
	query.Set("history", "1")
	query.Set("offers", strconv.Itoa(c.cfg.OffersCount))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/product?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("keepa: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keepa: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to read
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (HTTP %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("keepa: bad request for ASIN %s (HTTP 400)", asin)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{status: resp.StatusCode}
	default:
		return nil, fmt.Errorf("keepa: unexpected HTTP %d", resp.StatusCode)
	}

	reader, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("keepa: decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("keepa: read body: %w", err)
	}
	return body, nil
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
