package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"resalescout/internal/model"
	"resalescout/internal/store"
)

type fakeAmazon struct {
	mu    sync.Mutex
	calls int
	data  *model.AmazonData
	err   error
}

func (f *fakeAmazon) Fetch(ctx context.Context, asin string) (*model.AmazonData, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	src := f.data
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	data := *src
	data.LastUpdated = time.Now()
	return &data, nil
}

func (f *fakeAmazon) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAuction struct {
	data *model.AuctionData
	err  error
}

func (f *fakeAuction) Search(ctx context.Context, keyword string) (*model.AuctionData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func goodAmazon() *fakeAmazon {
	return &fakeAmazon{data: &model.AmazonData{
		Title:     "東芝 掃除機 VC-C7",
		UsedPrice: model.Int(15000),
		NewPrice:  model.Int(19800),
	}}
}

func goodAuction() *fakeAuction {
	return &fakeAuction{data: &model.AuctionData{
		AvgPrice:    model.Int(8000),
		SoldCount:   model.Int(12),
		LastUpdated: time.Now(),
	}}
}

func newTestRegistry(t *testing.T, amazon AmazonSource, auction AuctionSource) *Registry {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "snapshot.json"))
	r, err := New(st, amazon, auction, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func TestRegister_DoesNotFetch(t *testing.T) {
	amazon := goodAmazon()
	r := newTestRegistry(t, amazon, nil)

	p, err := r.Register("掃除機", "b000test01", "", 0, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Status != model.StatusPending {
		t.Errorf("expected pending, got %q", p.Status)
	}
	if p.ASIN != "B000TEST01" {
		t.Errorf("expected normalized ASIN, got %q", p.ASIN)
	}
	if p.TargetProfitRate != DefaultTargetRate {
		t.Errorf("expected default target rate, got %v", p.TargetProfitRate)
	}
	if amazon.callCount() != 0 {
		t.Errorf("register must not fetch, saw %d calls", amazon.callCount())
	}
}

func TestRegister_RejectsBadASIN(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	if _, err := r.Register("x", "NOT-AN-ASIN", "", 0, nil); !errors.Is(err, model.ErrInvalidASIN) {
		t.Errorf("expected ErrInvalidASIN, got %v", err)
	}
}

func TestRegister_NeedsASINOrKeyword(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	if _, err := r.Register("x", "", "", 0, nil); err == nil {
		t.Error("expected an error with neither ASIN nor keyword")
	}
}

func TestRefresh_Success(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), goodAuction())
	p, _ := r.Register("掃除機", "B000TEST01", "東芝 掃除機", 30, nil)

	got, err := r.Refresh(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.Status != model.StatusSuccess {
		t.Fatalf("expected success, got %q (%s)", got.Status, got.Error)
	}
	if got.Amazon == nil || got.Amazon.UsedPrice == nil || *got.Amazon.UsedPrice != 15000 {
		t.Error("expected Amazon data on the product")
	}
	if got.Amazon.Analysis == nil {
		t.Error("expected a validation verdict attached to the Amazon data")
	}
	if got.Auction == nil || *got.Auction.AvgPrice != 8000 {
		t.Error("expected auction data on the product")
	}
	if got.Profit == nil || got.Profit.PotentialProfit == nil {
		t.Fatal("expected a profit estimate")
	}
	// 15000 - 3750 - 8000 - 800 = 2450
	if *got.Profit.PotentialProfit != 2450 {
		t.Errorf("expected profit 2450, got %v", *got.Profit.PotentialProfit)
	}
}

func TestRefresh_FailureLandsInErrorState(t *testing.T) {
	amazon := &fakeAmazon{err: errors.New("api down")}
	r := newTestRegistry(t, amazon, nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)

	got, err := r.Refresh(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("refresh itself must not error on a fetch failure: %v", err)
	}
	if got.Status != model.StatusError {
		t.Errorf("expected error status, got %q", got.Status)
	}
	if got.Error == "" {
		t.Error("expected the fetch error to be recorded")
	}

	// A later refresh can still succeed; the product is not stuck.
	amazon.mu.Lock()
	amazon.err = nil
	amazon.data = goodAmazon().data
	amazon.mu.Unlock()
	got, err = r.Refresh(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusSuccess {
		t.Errorf("expected recovery to success, got %q", got.Status)
	}
	if got.Error != "" {
		t.Errorf("expected the error to be cleared, got %q", got.Error)
	}
}

func TestRefresh_AuctionFailureDegrades(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), &fakeAuction{err: errors.New("blocked")})
	p, _ := r.Register("掃除機", "B000TEST01", "東芝 掃除機", 0, nil)

	got, err := r.Refresh(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusSuccess {
		t.Errorf("an auction miss must not fail the refresh, got %q", got.Status)
	}
	if got.Auction != nil {
		t.Error("expected no auction data")
	}
}

func TestGetOrRefresh_UsesFreshData(t *testing.T) {
	amazon := goodAmazon()
	r := newTestRegistry(t, amazon, nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)

	if _, err := r.GetOrRefresh(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetOrRefresh(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if n := amazon.callCount(); n != 1 {
		t.Errorf("expected 1 fetch for back-to-back reads, got %d", n)
	}
}

func TestRegistry_RehydratesFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	st := store.New(path)
	r, err := New(st, goodAmazon(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := r.Register("掃除機", "B000TEST01", "", 25, model.Int(12000))
	if _, err := r.Refresh(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Select(p.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetAPIKey("my-key"); err != nil {
		t.Fatal(err)
	}

	reborn, err := New(store.New(path), goodAmazon(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reborn.Get(p.ID)
	if err != nil {
		t.Fatalf("product missing after rehydrate: %v", err)
	}
	if got.Name != "掃除機" || got.TargetProfitRate != 25 {
		t.Errorf("fields did not survive: %+v", got)
	}
	if got.MaxPurchasePrice == nil || *got.MaxPurchasePrice != 12000 {
		t.Errorf("purchase cap did not survive: %v", got.MaxPurchasePrice)
	}
	if got.Status != model.StatusSuccess {
		t.Errorf("fetched state did not survive, got %q", got.Status)
	}
	if sel := reborn.Selected(); len(sel) != 1 || sel[0] != p.ID {
		t.Errorf("selection did not survive: %v", sel)
	}
	if reborn.APIKey() != "my-key" {
		t.Errorf("API key did not survive, got %q", reborn.APIKey())
	}
}

func TestRegistry_DemotesPersistedLoadingState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	st := store.New(path)
	if _, err := st.Load(); err != nil {
		t.Fatal(err)
	}
	err := st.Save(&store.Snapshot{Products: []model.Product{
		{ID: "stuck", Name: "x", ASIN: "B000TEST01", Status: model.StatusLoading},
	}})
	if err != nil {
		t.Fatal(err)
	}

	r, err := New(store.New(path), goodAmazon(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get("stuck")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("a persisted loading state must demote to pending, got %q", got.Status)
	}
}

func TestApply_ASINChangeResetsData(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)
	if _, err := r.Refresh(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}

	next := "B000TEST02"
	got, err := r.Apply(p.ID, Update{ASIN: &next})
	if err != nil {
		t.Fatal(err)
	}
	if got.ASIN != "B000TEST02" {
		t.Errorf("unexpected ASIN %q", got.ASIN)
	}
	if got.Amazon != nil || got.Profit != nil {
		t.Error("changing the ASIN must drop fetched data")
	}
	if got.Status != model.StatusPending {
		t.Errorf("expected pending after ASIN change, got %q", got.Status)
	}
}

func TestApply_RejectsBadASIN(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)
	bad := "nope"
	if _, err := r.Apply(p.ID, Update{ASIN: &bad}); !errors.Is(err, model.ErrInvalidASIN) {
		t.Errorf("expected ErrInvalidASIN, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)
	if err := r.Remove(p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := r.Remove("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestList_OrderedByRegistration(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	first, _ := r.Register("a", "B000TEST01", "", 0, nil)
	second, _ := r.Register("b", "B000TEST02", "", 0, nil)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 products, got %d", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Error("expected oldest-first ordering")
	}
}

func TestRefreshAll_CollectsFailuresAndContinues(t *testing.T) {
	failing := &fakeAmazon{err: errors.New("boom")}
	r := newTestRegistry(t, failing, nil)
	p1, _ := r.Register("a", "B000TEST01", "", 0, nil)
	p2, _ := r.Register("b", "B000TEST02", "", 0, nil)

	failures := r.RefreshAll(context.Background(), NewQueue(100000))
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	for _, id := range []string{p1.ID, p2.ID} {
		if failures[id] == nil {
			t.Errorf("expected a failure recorded for %s", id)
		}
		got, _ := r.Get(id)
		if got.Status != model.StatusError {
			t.Errorf("expected error status for %s, got %q", id, got.Status)
		}
	}
}

func TestRefreshSelected_RefreshesOnlySelectionAndClearsIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	r, err := New(store.New(path), goodAmazon(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := r.Register("a", "B000TEST01", "", 0, nil)
	p2, _ := r.Register("b", "B000TEST02", "", 0, nil)
	p3, _ := r.Register("c", "B000TEST03", "", 0, nil)
	for _, id := range []string{p1.ID, p2.ID} {
		if err := r.Select(id, true); err != nil {
			t.Fatal(err)
		}
	}

	failures := r.RefreshSelected(context.Background(), NewQueue(100000))
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	for _, id := range []string{p1.ID, p2.ID} {
		got, _ := r.Get(id)
		if got.Status != model.StatusSuccess {
			t.Errorf("selected product %s not refreshed, status %q", id, got.Status)
		}
	}
	if got, _ := r.Get(p3.ID); got.Status != model.StatusPending {
		t.Errorf("unselected product must stay pending, got %q", got.Status)
	}
	if sel := r.Selected(); len(sel) != 0 {
		t.Errorf("selection must be cleared after the run, got %v", sel)
	}

	// The clear must be persisted, not just in memory.
	reborn, err := New(store.New(path), goodAmazon(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel := reborn.Selected(); len(sel) != 0 {
		t.Errorf("selection clear did not survive reload: %v", sel)
	}
}

func TestRefreshSelected_ClearsEvenWhenRefreshesFail(t *testing.T) {
	r := newTestRegistry(t, &fakeAmazon{err: errors.New("boom")}, nil)
	p, _ := r.Register("a", "B000TEST01", "", 0, nil)
	if err := r.Select(p.ID, true); err != nil {
		t.Fatal(err)
	}

	failures := r.RefreshSelected(context.Background(), NewQueue(100000))
	if failures[p.ID] == nil {
		t.Error("expected the fetch failure to be reported")
	}
	if sel := r.Selected(); len(sel) != 0 {
		t.Errorf("a failed run must still consume the selection, got %v", sel)
	}
}

func TestRefresh_ConcurrentRunsLandTerminal(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Refresh(context.Background(), p.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := r.Get(p.ID)
	if got.Status != model.StatusSuccess {
		t.Errorf("back-to-back refreshes must land in a terminal state, got %q", got.Status)
	}
}

func TestQueue_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int
	failures := NewQueue(10).Run(ctx, []string{"a", "b"}, func(ctx context.Context, id string) error {
		ran++
		return nil
	})
	if ran != 0 {
		t.Errorf("expected no tasks after cancellation, got %d", ran)
	}
	if len(failures) == 0 {
		t.Error("expected the cancellation to be reported")
	}
}

func TestSnapshotCopiesAreIsolated(t *testing.T) {
	r := newTestRegistry(t, goodAmazon(), nil)
	p, _ := r.Register("掃除機", "B000TEST01", "", 0, nil)
	if _, err := r.Refresh(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := r.Get(p.ID)
	*got.Amazon.UsedPrice = 1

	again, _ := r.Get(p.ID)
	if *again.Amazon.UsedPrice == 1 {
		t.Error("mutating a returned product must not touch registry state")
	}
}
