// Package delivery obtains priced delivery quotes from the remote
// distance/pricing service for the cart's owning shop.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/session"
)

const quotePath = "orders/calculate-delivery-distance/"

// Resolver requests quotes and keeps the most recent one. Superseded
// responses (an older request finishing after a newer one) are discarded so
// a stale quote can never overwrite a fresher one.
type Resolver struct {
	sess session.Doer
	log  *zap.Logger

	mu      sync.Mutex
	nextSeq uint64
	doneSeq uint64
	quote   *model.DeliveryQuote
}

// New builds a resolver. When mgr is a *session.Manager the held quote is
// dropped on session end.
func New(sess session.Doer, log *zap.Logger) *Resolver {
	r := &Resolver{sess: sess, log: log}
	if m, ok := sess.(*session.Manager); ok {
		m.OnSessionEnd(r.Invalidate)
	}
	return r
}

type quoteRequest struct {
	UserLat   float64 `json:"user_lat"`
	UserLng   float64 `json:"user_lng"`
	ShopLat   float64 `json:"shop_lat"`
	ShopLng   float64 `json:"shop_lng"`
	ShopID    string  `json:"shop_id"`
	CartTotal float64 `json:"total_order_amount"`
}

type quoteResponse struct {
	Distance  string  `json:"distance_text"`
	Duration  string  `json:"duration_text"`
	Charge    float64 `json:"delivery_charge"`
	Available bool    `json:"delivery_available"`
	Message   string  `json:"message"`
}

// Quote requests a delivery quote for the address and the cart's owning
// shop. An empty cart or a shop without coordinates is a precondition
// failure, not a retryable error. Non-deliverable addresses come back as a
// valid quote with Available=false.
func (r *Resolver) Quote(ctx context.Context, addr model.Address, snap model.CartSnapshot) (model.DeliveryQuote, error) {
	if snap.Empty() {
		return model.DeliveryQuote{}, fmt.Errorf("%w: cart is empty", errs.ErrPrecondition)
	}
	shop := snap.Lines[0]
	if shop.ShopLat == 0 && shop.ShopLng == 0 {
		return model.DeliveryQuote{}, fmt.Errorf("%w: shop %s has no coordinates", errs.ErrPrecondition, shop.ShopID)
	}

	r.mu.Lock()
	r.nextSeq++
	seq := r.nextSeq
	r.mu.Unlock()

	req := quoteRequest{
		UserLat:   addr.Latitude,
		UserLng:   addr.Longitude,
		ShopLat:   shop.ShopLat,
		ShopLng:   shop.ShopLng,
		ShopID:    shop.ShopID,
		CartTotal: snap.Total(),
	}
	var resp quoteResponse
	if err := r.sess.Do(ctx, http.MethodPost, quotePath, nil, req, &resp); err != nil {
		return model.DeliveryQuote{}, err
	}

	q := model.DeliveryQuote{
		Distance:  resp.Distance,
		Duration:  resp.Duration,
		Charge:    resp.Charge,
		Available: resp.Available,
		Message:   resp.Message,
		Basis: model.QuoteBasis{
			AddressID: addr.ID,
			ShopID:    shop.ShopID,
			CartTotal: snap.Total(),
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < r.doneSeq {
		// a newer request already completed; this result must not win
		r.log.Debug("discarding superseded quote", zap.Uint64("seq", seq), zap.Uint64("done", r.doneSeq))
		return model.DeliveryQuote{}, fmt.Errorf("quote request: %w", errs.ErrSuperseded)
	}
	r.doneSeq = seq
	r.quote = &q
	return q, nil
}

// Current returns the held quote when its basis still matches; a changed
// address, shop, or cart total invalidates it.
func (r *Resolver) Current(basis model.QuoteBasis) (model.DeliveryQuote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quote == nil || r.quote.Basis != basis {
		return model.DeliveryQuote{}, false
	}
	return *r.quote, true
}

// Invalidate drops the held quote. Called on address change, cart change,
// checkout success, and session end.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.quote = nil
	r.mu.Unlock()
}
