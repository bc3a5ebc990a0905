// Package stubapi is an in-memory double of the storefront backend: auth,
// shop directory, cart, delivery pricing, and order placement. It backs
// integration tests and runs standalone for local development; nothing in it
// survives a restart.
package stubapi

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/limiter"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
)

// Config tunes the stub.
type Config struct {
	JWTKey    []byte
	AccessTTL time.Duration // default 15m
}

// Delivery pricing constants: flat base charge plus per-km beyond the base
// distance, free above a spend threshold, deliverable within the radius.
const (
	baseCharge    = 20.0
	baseKM        = 3.0
	perKM         = 8.0
	freeAbove     = 999.0
	radiusKM      = 12.0
	avgSpeedKMH   = 24.0
	refreshTTL    = 24 * time.Hour
	defaultAccess = 15 * time.Minute
)

type userRec struct {
	name   string
	salt   []byte
	hash   []byte
	role   model.Role
	shopID string
}

type shopRec struct {
	id   string
	name string
	lat  float64
	lng  float64
}

type itemRec struct {
	id     string
	name   string
	shopID string
	price  float64
}

type refreshRec struct {
	username string
	expires  time.Time
}

// Server holds all stub state behind one lock.
type Server struct {
	cfg Config
	log *zap.Logger

	tokenGen atomic.Int64 // bumped by ExpireAccessTokens

	mu        sync.Mutex
	users     map[string]*userRec
	shops     map[string]*shopRec
	items     map[string]*itemRec
	addresses map[string][]model.Address       // username -> book
	carts     map[string][]model.CartLine      // username -> lines
	refresh   map[string]refreshRec            // refresh token -> record
	orders    map[string]string                // username|idempotency key -> order id
	limiter   limiter.Limiter
	orderSeq  int
	lineSeq   int
}

// NewServer builds a stub with the standard seed data.
func NewServer(cfg Config, log *zap.Logger) (*Server, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccess
	}
	if len(cfg.JWTKey) == 0 {
		return nil, fmt.Errorf("stubapi: empty JWT key")
	}
	s := &Server{
		cfg:       cfg,
		log:       log,
		users:     map[string]*userRec{},
		shops:     map[string]*shopRec{},
		items:     map[string]*itemRec{},
		addresses: map[string][]model.Address{},
		carts:     map[string][]model.CartLine{},
		refresh:   map[string]refreshRec{},
		orders:    map[string]string{},
		limiter:   limiter.NewMemory(time.Minute, 5, 5*time.Minute),
	}
	if err := s.seed(); err != nil {
		return nil, err
	}
	return s, nil
}

// seed populates two shops, a handful of items, a customer and a shop admin.
func (s *Server) seed() error {
	s.shops["shop-1"] = &shopRec{id: "shop-1", name: "Green Grocer", lat: 9.9312, lng: 76.2673}
	s.shops["shop-2"] = &shopRec{id: "shop-2", name: "Daily Mart", lat: 10.0159, lng: 76.3419}

	s.items["apple"] = &itemRec{id: "apple", name: "Apple 1kg", shopID: "shop-1", price: 120}
	s.items["banana"] = &itemRec{id: "banana", name: "Banana 1kg", shopID: "shop-1", price: 48}
	s.items["milk"] = &itemRec{id: "milk", name: "Milk 1l", shopID: "shop-1", price: 28}
	s.items["soap"] = &itemRec{id: "soap", name: "Bath soap", shopID: "shop-2", price: 45}
	s.items["rice"] = &itemRec{id: "rice", name: "Rice 5kg", shopID: "shop-2", price: 310}

	for _, u := range []struct {
		name, password string
		role           model.Role
		shopID         string
	}{
		{"alice", "alice-pw", model.RoleCustomer, ""},
		{"bob", "bob-pw", model.RoleShopAdmin, "shop-1"},
	} {
		salt, hash, err := hashPassword(u.password)
		if err != nil {
			return err
		}
		s.users[u.name] = &userRec{name: u.name, salt: salt, hash: hash, role: u.role, shopID: u.shopID}
	}

	s.addresses["alice"] = []model.Address{
		{ID: "addr-1", Label: "home", Line: "12 Rose St", Latitude: 9.9674, Longitude: 76.2850, Default: true},
		{ID: "addr-2", Label: "office", Line: "4 Tech Park", Latitude: 10.0520, Longitude: 76.3540},
		{ID: "addr-3", Label: "far", Line: "hill cottage", Latitude: 10.5310, Longitude: 76.2140},
	}
	return nil
}

// ExpireAccessTokens revokes every outstanding access token while keeping
// refresh tokens valid. Tests use it to force the 401-renew-replay path.
func (s *Server) ExpireAccessTokens() {
	s.tokenGen.Add(1)
}

// Engine wires routes the way the deployed backend lays them out.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())

	users := r.Group("/users")
	users.POST("/login/", s.login)
	users.POST("/refresh/", s.renewToken)
	users.GET("/addresses/", s.requireAuth(), s.listAddresses)

	r.GET("/shops/my-shop/", s.requireAuth(), s.myShop)

	orders := r.Group("/orders", s.requireAuth())
	orders.GET("/cart/", s.getCart)
	orders.POST("/cart/", s.addToCart)
	orders.PATCH("/cart/:id/", s.updateLine)
	orders.DELETE("/cart/:id/", s.removeLine)
	orders.POST("/calculate-delivery-distance/", s.quoteDelivery)
	orders.POST("/cart/checkout/", s.checkout)
	return r
}

func (s *Server) issueAccess(username string, role model.Role) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		Role: string(role),
		Gen:  s.tokenGen.Load(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.cfg.JWTKey)
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"detail": "malformed login request"})
		return
	}
	ipHash := limiter.HashIP(c.ClientIP())
	allowed, retry, _ := s.limiter.Allow(c.Request.Context(), body.Username, ipHash)
	if !allowed {
		c.JSON(429, gin.H{"detail": fmt.Sprintf("too many attempts, retry in %s", retry.Round(time.Second))})
		return
	}

	s.mu.Lock()
	u, ok := s.users[body.Username]
	s.mu.Unlock()
	if !ok || !verifyPassword(body.Password, u.salt, u.hash) {
		if blocked, _, _ := s.limiter.Failure(c.Request.Context(), body.Username, ipHash); blocked {
			c.JSON(429, gin.H{"detail": "too many attempts"})
			return
		}
		c.JSON(401, gin.H{"detail": "invalid credentials"})
		return
	}
	_ = s.limiter.Success(c.Request.Context(), body.Username, ipHash)

	access, err := s.issueAccess(u.name, u.role)
	if err != nil {
		c.JSON(500, gin.H{"detail": "token issue failed"})
		return
	}
	rid, err := uuid.NewV4()
	if err != nil {
		c.JSON(500, gin.H{"detail": "token issue failed"})
		return
	}
	s.mu.Lock()
	s.refresh[rid.String()] = refreshRec{username: u.name, expires: time.Now().Add(refreshTTL)}
	s.mu.Unlock()

	c.JSON(200, gin.H{
		"access":   access,
		"refresh":  rid.String(),
		"role":     u.role,
		"username": u.name,
	})
}

type renewBody struct {
	Refresh string `json:"refresh"`
}

func (s *Server) renewToken(c *gin.Context) {
	var body renewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(400, gin.H{"detail": "malformed refresh request"})
		return
	}
	s.mu.Lock()
	rec, ok := s.refresh[body.Refresh]
	var u *userRec
	if ok {
		u = s.users[rec.username]
	}
	s.mu.Unlock()
	if !ok || u == nil || time.Now().After(rec.expires) {
		c.JSON(401, gin.H{"detail": "refresh token invalid"})
		return
	}
	access, err := s.issueAccess(u.name, u.role)
	if err != nil {
		c.JSON(500, gin.H{"detail": "token issue failed"})
		return
	}
	c.JSON(200, gin.H{"access": access})
}

// RevokeRefreshTokens invalidates every refresh token, ending all sessions
// at their next renewal.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = map[string]refreshRec{}
	s.mu.Unlock()
}

func (s *Server) myShop(c *gin.Context) {
	s.mu.Lock()
	u := s.users[subject(c)]
	s.mu.Unlock()
	if u == nil || u.role != model.RoleShopAdmin || u.shopID == "" {
		c.JSON(404, gin.H{"detail": "no shop for this account"})
		return
	}
	c.JSON(200, gin.H{"shop_id": u.shopID})
}

func (s *Server) listAddresses(c *gin.Context) {
	s.mu.Lock()
	book := append([]model.Address(nil), s.addresses[subject(c)]...)
	s.mu.Unlock()
	c.JSON(200, book)
}

func (s *Server) getCart(c *gin.Context) {
	s.mu.Lock()
	lines := append([]model.CartLine(nil), s.carts[subject(c)]...)
	s.mu.Unlock()
	c.JSON(200, lines)
}

type addBody struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Reset    bool   `json:"reset"`
}

func (s *Server) addToCart(c *gin.Context) {
	var body addBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ItemID == "" || body.Quantity < 1 {
		c.JSON(400, gin.H{"detail": "item_id and positive quantity required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user := subject(c)
	item, ok := s.items[body.ItemID]
	if !ok {
		c.JSON(404, gin.H{"detail": "no such item"})
		return
	}
	cart := s.carts[user]
	if body.Reset {
		cart = nil
	}
	if len(cart) > 0 && cart[0].ShopID != item.shopID {
		owner := s.shops[cart[0].ShopID]
		c.JSON(409, gin.H{"detail": fmt.Sprintf("your cart has items from %s; empty it to order from another shop", owner.name)})
		return
	}
	shop := s.shops[item.shopID]
	s.lineSeq++
	cart = append(cart, model.CartLine{
		ID:       fmt.Sprintf("line-%d", s.lineSeq),
		ItemID:   item.id,
		ShopID:   item.shopID,
		Name:     item.name,
		Price:    item.price,
		Quantity: body.Quantity,
		ShopLat:  shop.lat,
		ShopLng:  shop.lng,
	})
	s.carts[user] = cart
	c.JSON(200, cart)
}

type updateBody struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateLine(c *gin.Context) {
	var body updateBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Quantity < 1 {
		c.JSON(400, gin.H{"detail": "positive quantity required"})
		return
	}
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.carts[subject(c)]
	for i := range cart {
		if cart[i].ID == id {
			cart[i].Quantity = body.Quantity
			c.JSON(200, cart)
			return
		}
	}
	c.JSON(404, gin.H{"detail": "no such cart line"})
}

func (s *Server) removeLine(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	user := subject(c)
	cart := s.carts[user]
	for i := range cart {
		if cart[i].ID == id {
			s.carts[user] = append(cart[:i], cart[i+1:]...)
			c.JSON(200, s.carts[user])
			return
		}
	}
	c.JSON(404, gin.H{"detail": "no such cart line"})
}

type quoteBody struct {
	UserLat   float64 `json:"user_lat"`
	UserLng   float64 `json:"user_lng"`
	ShopLat   float64 `json:"shop_lat"`
	ShopLng   float64 `json:"shop_lng"`
	ShopID    string  `json:"shop_id"`
	CartTotal float64 `json:"total_order_amount"`
}

func (s *Server) quoteDelivery(c *gin.Context) {
	var body quoteBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ShopID == "" {
		c.JSON(400, gin.H{"detail": "shop and coordinates required"})
		return
	}
	km := haversineKM(body.UserLat, body.UserLng, body.ShopLat, body.ShopLng)
	mins := km / avgSpeedKMH * 60

	if km > radiusKM {
		c.JSON(200, gin.H{
			"distance_text":      fmt.Sprintf("%.1f km", km),
			"duration_text":      fmt.Sprintf("%.0f min", mins),
			"delivery_charge":    0,
			"delivery_available": false,
			"message":            fmt.Sprintf("address is %.1f km away; we deliver within %.0f km", km, radiusKM),
		})
		return
	}
	charge := baseCharge
	if km > baseKM {
		charge += (km - baseKM) * perKM
	}
	if body.CartTotal >= freeAbove {
		charge = 0
	}
	c.JSON(200, gin.H{
		"distance_text":      fmt.Sprintf("%.1f km", km),
		"duration_text":      fmt.Sprintf("%.0f min", mins),
		"delivery_charge":    math.Round(charge),
		"delivery_available": true,
	})
}

type checkoutBody struct {
	AddressID      string  `json:"delivery_address"`
	DeliveryCharge float64 `json:"delivery_charge"`
}

func (s *Server) checkout(c *gin.Context) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil || body.AddressID == "" {
		c.JSON(400, gin.H{"detail": "delivery_address required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user := subject(c)

	if len(s.carts[user]) == 0 {
		c.JSON(400, gin.H{"detail": "cart is empty"})
		return
	}
	owned := false
	for _, a := range s.addresses[user] {
		if a.ID == body.AddressID {
			owned = true
			break
		}
	}
	if !owned {
		c.JSON(400, gin.H{"detail": "unknown delivery address"})
		return
	}

	if key := c.GetHeader("Idempotency-Key"); key != "" {
		dedupe := user + "|" + key
		if id, ok := s.orders[dedupe]; ok {
			c.JSON(200, gin.H{"order_id": id})
			return
		}
		s.orderSeq++
		id := fmt.Sprintf("order-%d", s.orderSeq)
		s.orders[dedupe] = id
		s.carts[user] = nil
		c.JSON(200, gin.H{"order_id": id})
		return
	}
	s.orderSeq++
	s.carts[user] = nil
	c.JSON(200, gin.H{"order_id": fmt.Sprintf("order-%d", s.orderSeq)})
}

// haversineKM returns the great-circle distance between two points.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
