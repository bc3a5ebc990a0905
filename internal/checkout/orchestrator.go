// Package checkout sequences the terminal transition from cart to order:
// address selection, delivery quoting, and a single atomic placement.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/cart"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/delivery"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/session"
)

const (
	addressesPath = "users/addresses/"
	checkoutPath  = "orders/cart/checkout/"
)

// State is the orchestrator's position in the checkout flow.
type State int

const (
	SelectingAddress State = iota
	QuotingDelivery
	ReadyToPlace
	Placing
	Placed
)

func (s State) String() string {
	switch s {
	case SelectingAddress:
		return "selecting-address"
	case QuotingDelivery:
		return "quoting-delivery"
	case ReadyToPlace:
		return "ready-to-place"
	case Placing:
		return "placing"
	case Placed:
		return "placed"
	default:
		return "unknown"
	}
}

// Orchestrator owns the cart→order transition. Placement happens at most
// once concurrently; success is the only path that clears the cart.
type Orchestrator struct {
	sess    session.Doer
	cart    *cart.Cart
	pricing *delivery.Resolver
	log     *zap.Logger

	mu      sync.Mutex
	state   State
	addr    model.Address
	quote   model.DeliveryQuote
	idemKey string // reused across retries of one placement attempt
	placing bool
}

// New builds an orchestrator in SelectingAddress.
func New(sess session.Doer, c *cart.Cart, pricing *delivery.Resolver, log *zap.Logger) *Orchestrator {
	return &Orchestrator{sess: sess, cart: c, pricing: pricing, log: log}
}

// State returns the current position in the flow.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Quote returns the held delivery quote, if any.
func (o *Orchestrator) Quote() (model.DeliveryQuote, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quote, o.quote.Basis != (model.QuoteBasis{})
}

// Addresses lists the account's saved delivery addresses.
func (o *Orchestrator) Addresses(ctx context.Context) ([]model.Address, error) {
	var addrs []model.Address
	if err := o.sess.Do(ctx, http.MethodGet, addressesPath, nil, nil, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Start enters the flow and auto-advances when a default address exists.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.state = SelectingAddress
	o.quote = model.DeliveryQuote{}
	o.idemKey = ""
	o.mu.Unlock()

	addrs, err := o.Addresses(ctx)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if a.Default {
			return o.SelectAddress(ctx, a)
		}
	}
	return nil
}

// SelectAddress records the delivery address and fetches a fresh quote,
// refreshing the cart first so the quote basis matches server truth. A
// non-deliverable outcome keeps the flow in QuotingDelivery with the
// advisory message held; placement refuses until a deliverable quote exists.
func (o *Orchestrator) SelectAddress(ctx context.Context, addr model.Address) error {
	o.mu.Lock()
	if o.placing {
		o.mu.Unlock()
		return errs.ErrPlacementInFlight
	}
	o.state = QuotingDelivery
	o.addr = addr
	o.quote = model.DeliveryQuote{}
	o.idemKey = ""
	o.mu.Unlock()
	o.pricing.Invalidate()

	snap, err := o.cart.Refresh(ctx)
	if err != nil {
		return err
	}
	q, err := o.pricing.Quote(ctx, addr, snap)
	if err != nil {
		if errors.Is(err, errs.ErrSuperseded) {
			// a newer selection is already quoting; let its result stand
			return nil
		}
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.addr.ID != addr.ID {
		// address re-selected while quoting
		return nil
	}
	o.quote = q
	if !q.Available {
		o.log.Info("address not deliverable",
			zap.String("address_id", addr.ID),
			zap.String("reason", q.Message),
		)
		return nil
	}
	key, err := uuid.NewV4()
	if err != nil {
		return err
	}
	o.idemKey = key.String()
	o.state = ReadyToPlace
	return nil
}

type checkoutRequest struct {
	AddressID      string  `json:"delivery_address"`
	DeliveryCharge float64 `json:"delivery_charge"`
}

type checkoutResponse struct {
	OrderID string `json:"order_id"`
}

// PlaceOrder performs the single atomic placement call. It refuses while a
// placement is in flight, while the quote marks the address non-deliverable,
// and when the held quote no longer matches the live cart (ErrQuoteStale,
// back to QuotingDelivery). Failures are surfaced once; the caller decides
// whether to retry, and a retry reuses the same idempotency key.
func (o *Orchestrator) PlaceOrder(ctx context.Context) (model.Order, error) {
	o.mu.Lock()
	if o.placing {
		o.mu.Unlock()
		return model.Order{}, errs.ErrPlacementInFlight
	}
	if o.state != ReadyToPlace {
		o.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: checkout not ready (state %s)", errs.ErrPrecondition, o.state)
	}
	if !o.quote.Available {
		o.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: delivery not available: %s", errs.ErrPrecondition, o.quote.Message)
	}
	addr, quote, key := o.addr, o.quote, o.idemKey
	o.placing = true
	o.state = Placing
	o.mu.Unlock()

	// revalidate the quote basis against the live mirror before committing
	snap := o.cart.Snapshot()
	basis := model.QuoteBasis{AddressID: addr.ID, ShopID: snap.ShopID(), CartTotal: snap.Total()}
	if _, ok := o.pricing.Current(basis); !ok || quote.Basis != basis {
		o.fail(QuotingDelivery)
		return model.Order{}, fmt.Errorf("cart or address changed: %w", errs.ErrQuoteStale)
	}

	hdr := http.Header{}
	hdr.Set("Idempotency-Key", key)
	var resp checkoutResponse
	err := o.sess.Do(ctx, http.MethodPost, checkoutPath, hdr, checkoutRequest{
		AddressID:      addr.ID,
		DeliveryCharge: quote.Charge,
	}, &resp)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			// cart changed concurrently server-side: the quote is stale
			o.fail(QuotingDelivery)
			return model.Order{}, fmt.Errorf("%v: %w", err, errs.ErrQuoteStale)
		}
		// recoverable: keep the quote and key so the caller may retry as-is
		o.fail(ReadyToPlace)
		return model.Order{}, err
	}

	o.mu.Lock()
	o.state = Placed
	o.placing = false
	o.idemKey = ""
	o.mu.Unlock()

	// the one and only path that clears the cart
	o.cart.Clear()
	o.pricing.Invalidate()

	order := model.Order{
		ID:             resp.OrderID,
		AddressID:      addr.ID,
		DeliveryCharge: quote.Charge,
		Total:          quote.Basis.CartTotal + quote.Charge,
		PlacedAt:       time.Now(),
	}
	o.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("address_id", order.AddressID),
		zap.Float64("delivery_charge", order.DeliveryCharge),
	)
	return order, nil
}

func (o *Orchestrator) fail(next State) {
	o.mu.Lock()
	o.placing = false
	o.state = next
	if next == QuotingDelivery {
		o.idemKey = ""
		o.quote = model.DeliveryQuote{}
	}
	o.mu.Unlock()
}
