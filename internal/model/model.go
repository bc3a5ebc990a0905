// Package model defines domain entities shared by the storefront client components.
package model

import "time"

// Role identifies the account kind carried by a credential.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleShopAdmin  Role = "shopadmin"
	RoleSuperAdmin Role = "superadmin"
)

// Credential is the access/refresh token pair plus identity claims for the
// current session. Access and refresh are both present or both absent.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Subject      string    `json:"subject"`
	Role         Role      `json:"role"`
	ShopID       string    `json:"shop_id,omitempty"` // set for shopadmin when the lookup succeeds
	ExpiresAt    time.Time `json:"expires_at"`        // access token expiry (for renewal scheduling)
}

// Valid reports whether the credential holds a usable token pair.
func (c *Credential) Valid() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}

// CartLine is a single server-owned cart entry. Price is post-offer and
// server-computed; the client never derives it.
type CartLine struct {
	ID       string  `json:"id"`
	ItemID   string  `json:"item_id"`
	ShopID   string  `json:"shop_id"`
	Name     string  `json:"name"`
	Image    string  `json:"image,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	ShopLat  float64 `json:"shop_lat"`
	ShopLng  float64 `json:"shop_lng"`
}

// CartSnapshot is an immutable view of the cart mirror at one point in time.
type CartSnapshot struct {
	Lines []CartLine
}

// ShopID returns the owning shop of a non-empty cart, "" otherwise.
func (s CartSnapshot) ShopID() string {
	if len(s.Lines) == 0 {
		return ""
	}
	return s.Lines[0].ShopID
}

// Total is the sum of server-computed line prices. Used as a quote basis
// fingerprint, not as authoritative pricing.
func (s CartSnapshot) Total() float64 {
	var sum float64
	for _, l := range s.Lines {
		sum += l.Price * float64(l.Quantity)
	}
	return sum
}

// Empty reports whether the cart holds no lines.
func (s CartSnapshot) Empty() bool { return len(s.Lines) == 0 }

// PendingAdd is an add-request held back by a shop conflict, awaiting an
// explicit user decision.
type PendingAdd struct {
	ItemID   string
	Quantity int
}

// Address is a saved delivery address from the account's address book.
type Address struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Line      string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Default   bool    `json:"is_default"`
}

// QuoteBasis pins a delivery quote to the state it was computed from.
// Any component differing invalidates the quote.
type QuoteBasis struct {
	AddressID string
	ShopID    string
	CartTotal float64
}

// DeliveryQuote is a priced estimate for delivering the current cart to a
// specific address. Valid only for its Basis.
type DeliveryQuote struct {
	Distance  string
	Duration  string
	Charge    float64
	Available bool
	Message   string
	Basis     QuoteBasis
}

// Order is the terminal artifact of checkout. Owned by the remote order
// service after creation; the client only records the identifier it got back.
type Order struct {
	ID             string
	AddressID      string
	DeliveryCharge float64
	Total          float64
	PlacedAt       time.Time
}
