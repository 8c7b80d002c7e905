package keepa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(baseURL string) *Client {
	return New(Config{
		APIKey:            "test-key",
		BaseURL:           baseURL,
		MaxRetries:        2,
		RequestsPerMinute: 6000,
		RequestTimeout:    5 * time.Second,
	})
}

func TestClient_Product(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("asin"); got != "B000TEST01" {
			t.Errorf("unexpected asin %q", got)
		}
		if got := r.URL.Query().Get("domain"); got != "5" {
			t.Errorf("unexpected domain %q", got)
		}
		w.Write([]byte(`{"products":[{"asin":"B000TEST01","title":"Test Item","csv":[[1,2980]]}]}`))
	}))
	defer server.Close()

	product, err := testClient(server.URL).Product(context.Background(), "B000TEST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Title != "Test Item" {
		t.Errorf("expected title 'Test Item', got %q", product.Title)
	}
}

func TestClient_MissingKey(t *testing.T) {
	client := New(Config{})
	_, err := client.Product(context.Background(), "B000TEST01")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestClient_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"products":[]}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Product(context.Background(), "B000NOSUCH")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Product(context.Background(), "B000TEST01")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 call, got %d", n)
	}
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"products":[{"title":"After Retry"}]}`))
	}))
	defer server.Close()

	product, err := testClient(server.URL).Product(context.Background(), "B000TEST01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Title != "After Retry" {
		t.Errorf("expected recovered payload, got %q", product.Title)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestClient_GivesUpAfterRetryCap(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Product(context.Background(), "B000TEST01")
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	// MaxRetries 2 means one initial attempt plus two retries.
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"valid", `{"products":[{"title":"ok"}]}`, nil},
		{"empty products", `{"products":[]}`, ErrNotFound},
		{"missing products", `{}`, ErrNotFound},
		{"missing title", `{"products":[{"asin":"B000TEST01"}]}`, ErrMalformedPayload},
		{"broken json", `{"products":`, ErrMalformedPayload},
		{"wrong shape", `{"products":"nope"}`, ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.body))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
