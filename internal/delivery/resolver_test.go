package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/session"
)

type fakePricing struct {
	mu    sync.Mutex
	calls int

	charge    float64
	available bool
	message   string
	err       error

	// block holds responses until released, for supersession ordering tests
	block chan struct{}
}

var _ session.Doer = (*fakePricing)(nil)

func (f *fakePricing) Do(_ context.Context, method, path string, _ http.Header, body, out any) error {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if f.err != nil {
		return f.err
	}
	resp := out.(*quoteResponse)
	*resp = quoteResponse{
		Distance:  "3.2 km",
		Duration:  "14 min",
		Charge:    f.charge,
		Available: f.available,
		Message:   f.message,
	}
	return nil
}

func cartFor(shop string, total float64) model.CartSnapshot {
	return model.CartSnapshot{Lines: []model.CartLine{{
		ID: "line-1", ItemID: "apple", ShopID: shop,
		ShopLat: 9.93, ShopLng: 76.26, Price: total, Quantity: 1,
	}}}
}

var addrA = model.Address{ID: "addr-a", Latitude: 9.97, Longitude: 76.28}
var addrB = model.Address{ID: "addr-b", Latitude: 10.01, Longitude: 76.31}

func TestQuote_Success(t *testing.T) {
	t.Parallel()
	f := &fakePricing{charge: 40, available: true}
	r := New(f, zap.NewNop())

	q, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 250))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Available || q.Charge != 40 || q.Distance == "" {
		t.Fatalf("quote: %+v", q)
	}
	want := model.QuoteBasis{AddressID: "addr-a", ShopID: "shop-1", CartTotal: 250}
	if q.Basis != want {
		t.Fatalf("basis = %+v, want %+v", q.Basis, want)
	}
}

func TestQuote_EmptyCartIsPrecondition(t *testing.T) {
	t.Parallel()
	f := &fakePricing{}
	r := New(f, zap.NewNop())

	_, err := r.Quote(context.Background(), addrA, model.CartSnapshot{})
	if !errors.Is(err, errs.ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("precondition failure must not call the service")
	}
}

func TestQuote_MissingShopCoordsIsPrecondition(t *testing.T) {
	t.Parallel()
	f := &fakePricing{}
	r := New(f, zap.NewNop())

	snap := model.CartSnapshot{Lines: []model.CartLine{{ID: "l", ItemID: "x", ShopID: "shop-1", Quantity: 1}}}
	_, err := r.Quote(context.Background(), addrA, snap)
	if !errors.Is(err, errs.ErrPrecondition) {
		t.Fatalf("want ErrPrecondition, got %v", err)
	}
}

func TestQuote_NotDeliverableIsAValidOutcome(t *testing.T) {
	t.Parallel()
	f := &fakePricing{available: false, message: "outside delivery radius"}
	r := New(f, zap.NewNop())

	q, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 100))
	if err != nil {
		t.Fatalf("non-deliverable must not be an error: %v", err)
	}
	if q.Available {
		t.Fatalf("want Available=false")
	}
	if q.Message == "" {
		t.Fatalf("advisory message missing")
	}
}

func TestQuote_ServiceFailurePropagates(t *testing.T) {
	t.Parallel()
	f := &fakePricing{err: session.NewCallError(http.StatusServiceUnavailable, "pricing down")}
	r := New(f, zap.NewNop())

	_, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 100))
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestCurrent_BasisMismatchInvalidates(t *testing.T) {
	t.Parallel()
	f := &fakePricing{charge: 40, available: true}
	r := New(f, zap.NewNop())

	q, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 250))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if _, ok := r.Current(q.Basis); !ok {
		t.Fatalf("matching basis must return the quote")
	}
	// owning shop changed: quote unusable
	changed := model.QuoteBasis{AddressID: "addr-a", ShopID: "shop-2", CartTotal: 250}
	if _, ok := r.Current(changed); ok {
		t.Fatalf("quote must be unusable after shop change")
	}
	// cart total changed
	changed = model.QuoteBasis{AddressID: "addr-a", ShopID: "shop-1", CartTotal: 300}
	if _, ok := r.Current(changed); ok {
		t.Fatalf("quote must be unusable after cart change")
	}
	// address changed
	changed = model.QuoteBasis{AddressID: "addr-b", ShopID: "shop-1", CartTotal: 250}
	if _, ok := r.Current(changed); ok {
		t.Fatalf("quote must be unusable after address change")
	}
}

func TestQuote_SupersededResultDiscarded(t *testing.T) {
	t.Parallel()
	first := make(chan struct{})
	f := &fakePricing{charge: 40, available: true, block: first}
	r := New(f, zap.NewNop())

	errCh := make(chan error, 1)
	go func() {
		// older request, held in flight
		_, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 100))
		errCh <- err
	}()

	// wait for the first request to reach the service
	for {
		f.mu.Lock()
		started := f.calls == 1
		f.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// newer request completes first
	f.mu.Lock()
	f.block = nil
	f.mu.Unlock()
	fresh, err := r.Quote(context.Background(), addrB, cartFor("shop-1", 100))
	if err != nil {
		t.Fatalf("fresh Quote: %v", err)
	}

	close(first)
	if err := <-errCh; !errors.Is(err, errs.ErrSuperseded) {
		t.Fatalf("stale quote: want ErrSuperseded, got %v", err)
	}

	// stored quote is the fresh one
	if got, ok := r.Current(fresh.Basis); !ok || got.Basis.AddressID != "addr-b" {
		t.Fatalf("stored quote overwritten by stale result: %+v ok=%v", got, ok)
	}
}

func TestInvalidate_DropsQuote(t *testing.T) {
	t.Parallel()
	f := &fakePricing{charge: 40, available: true}
	r := New(f, zap.NewNop())

	q, err := r.Quote(context.Background(), addrA, cartFor("shop-1", 250))
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	r.Invalidate()
	if _, ok := r.Current(q.Basis); ok {
		t.Fatalf("quote must be gone after Invalidate")
	}
}
