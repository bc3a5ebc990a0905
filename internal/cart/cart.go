// Package cart maintains a client-side mirror of the server cart and
// enforces the single-shop rule's client half: conflicts reported by the
// server surface as values, never as silent mixed carts.
package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/session"
)

const basePath = "orders/cart/"

// Conflict describes a rejected add: the item belongs to a different shop
// than the cart's owner. Resolved only by an explicit user decision.
type Conflict struct {
	Reason  string
	Pending model.PendingAdd
}

// AddResult is the tagged outcome of Add: exactly one field is set.
type AddResult struct {
	Accepted *model.CartSnapshot
	Conflict *Conflict
}

// Cart mirrors the server cart for the current session. The server stays
// authoritative for pricing and the single-shop rule; the mirror only
// reflects responses.
type Cart struct {
	sess session.Doer
	log  *zap.Logger

	mu    sync.Mutex
	lines []model.CartLine
}

// New builds an empty mirror. When mgr is a *session.Manager the mirror
// registers a session-end hook to discard itself.
func New(sess session.Doer, log *zap.Logger) *Cart {
	c := &Cart{sess: sess, log: log}
	if m, ok := sess.(*session.Manager); ok {
		m.OnSessionEnd(c.Clear)
	}
	return c
}

type addRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Reset    bool   `json:"reset,omitempty"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

// Add requests a new line. A 409 from the server leaves the mirror untouched
// and returns a Conflict carrying the pending request; any other failure
// propagates unchanged.
func (c *Cart) Add(ctx context.Context, itemID string, quantity int) (AddResult, error) {
	if quantity < 1 {
		return AddResult{}, fmt.Errorf("%w: quantity must be >= 1", errs.ErrValidation)
	}
	return c.send(ctx, addRequest{ItemID: itemID, Quantity: quantity})
}

// ResolveConflict settles a previously returned Conflict. With resetCart the
// original add is re-issued with the reset flag, atomically emptying the cart
// server-side; otherwise the pending request is dropped with no side effects.
func (c *Cart) ResolveConflict(ctx context.Context, pending model.PendingAdd, resetCart bool) (AddResult, error) {
	if !resetCart {
		c.log.Debug("conflict abandoned", zap.String("item_id", pending.ItemID))
		return AddResult{}, nil
	}
	return c.send(ctx, addRequest{ItemID: pending.ItemID, Quantity: pending.Quantity, Reset: true})
}

func (c *Cart) send(ctx context.Context, req addRequest) (AddResult, error) {
	var lines []model.CartLine
	err := c.sess.Do(ctx, http.MethodPost, basePath, nil, req, &lines)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return AddResult{Conflict: &Conflict{
				Reason:  session.Detail(err),
				Pending: model.PendingAdd{ItemID: req.ItemID, Quantity: req.Quantity},
			}}, nil
		}
		return AddResult{}, err
	}
	snap := c.mirror(lines)
	return AddResult{Accepted: &snap}, nil
}

// UpdateQuantity sets a line's quantity. Zero or negative quantities are
// rejected client-side without contacting the server; removal is a distinct
// operation.
func (c *Cart) UpdateQuantity(ctx context.Context, lineID string, quantity int) (model.CartSnapshot, error) {
	if quantity < 1 {
		return c.Snapshot(), fmt.Errorf("%w: quantity must be >= 1, use Remove to delete a line", errs.ErrValidation)
	}
	var lines []model.CartLine
	if err := c.sess.Do(ctx, http.MethodPatch, basePath+lineID+"/", nil, updateRequest{Quantity: quantity}, &lines); err != nil {
		return c.Snapshot(), err
	}
	return c.mirror(lines), nil
}

// Remove deletes a line. Removing an already-absent line succeeds silently.
func (c *Cart) Remove(ctx context.Context, lineID string) error {
	err := c.sess.Do(ctx, http.MethodDelete, basePath+lineID+"/", nil, nil, nil)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	c.mu.Lock()
	kept := c.lines[:0]
	for _, l := range c.lines {
		if l.ID != lineID {
			kept = append(kept, l)
		}
	}
	c.lines = kept
	c.mu.Unlock()
	return nil
}

// Refresh re-fetches the full cart, replacing the mirror. Used after
// mutations elsewhere and on session re-establishment.
func (c *Cart) Refresh(ctx context.Context) (model.CartSnapshot, error) {
	var lines []model.CartLine
	if err := c.sess.Do(ctx, http.MethodGet, basePath, nil, nil, &lines); err != nil {
		return model.CartSnapshot{}, err
	}
	return c.mirror(lines), nil
}

// Snapshot returns a copy of the current mirror.
func (c *Cart) Snapshot() model.CartSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CartSnapshot{Lines: append([]model.CartLine(nil), c.lines...)}
}

// Clear drops the mirror without contacting the server. Invoked on session
// end and by the checkout orchestrator on placement success.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

func (c *Cart) mirror(lines []model.CartLine) model.CartSnapshot {
	c.mu.Lock()
	c.lines = lines
	c.mu.Unlock()
	return model.CartSnapshot{Lines: append([]model.CartLine(nil), lines...)}
}
