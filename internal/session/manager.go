// Package session owns the credential lifecycle and wraps every outbound
// call to the storefront API: login, bearer authorization, single-retry
// renewal on 401, timer-driven background renewal, and logout.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/credstore"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
	"github.com/Hafees-J/rk-onlineshopping-fe/internal/model"
)

// API paths relative to the base URL. Deployment-specific; these match the
// deployed storefront backend.
const (
	pathLogin   = "users/login/"
	pathRefresh = "users/refresh/"
	pathMyShop  = "shops/my-shop/"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRenewLead = time.Minute
	fallbackTokenTTL = 15 * time.Minute
)

// Doer issues authorized JSON calls against the storefront API. Implemented
// by *Manager; fakes implement it in component tests.
type Doer interface {
	Do(ctx context.Context, method, path string, header http.Header, body, out any) error
}

// Config carries the remote endpoint and client-side tuning.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per-request bound; default 10s
	RenewLead time.Duration // background renewal lead before expiry; default 1m
}

// Manager guarantees that every outbound call carries a currently-valid
// access token and that a refresh failure degrades to logged-out exactly once.
//
// Concurrent renewal attempts (background timer vs reactive 401) are
// coalesced; concurrent Login calls are the caller's responsibility.
type Manager struct {
	cfg   Config
	store credstore.Store
	httpc *http.Client
	log   *zap.Logger

	mu   sync.RWMutex
	cred *model.Credential

	renew singleflight.Group
	kick  chan struct{} // wakes the background loop after login

	hookMu sync.Mutex
	onEnd  []func()
}

var _ Doer = (*Manager)(nil)

// NewManager builds a manager and restores any persisted credential.
func NewManager(cfg Config, store credstore.Store, log *zap.Logger) (*Manager, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RenewLead <= 0 {
		cfg.RenewLead = defaultRenewLead
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cred, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		httpc: &http.Client{Timeout: cfg.Timeout},
		log:   log,
		cred:  cred,
		kick:  make(chan struct{}, 1),
	}, nil
}

// Current returns a copy of the active credential, or nil when anonymous.
func (m *Manager) Current() *model.Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return nil
	}
	c := *m.cred
	return &c
}

// OnSessionEnd registers a hook invoked after logout or renewal failure so
// dependent components can discard in-memory state.
func (m *Manager) OnSessionEnd(fn func()) {
	m.hookMu.Lock()
	m.onEnd = append(m.onEnd, fn)
	m.hookMu.Unlock()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

type myShopResponse struct {
	ShopID string `json:"shop_id"`
}

// Login exchanges user credentials for a new token pair, persists the
// credential, and for shop admins performs one follow-up owning-shop lookup.
// A failed lookup is logged and ignored; the credential stays valid.
//
// Callers must not issue overlapping Login calls.
func (m *Manager) Login(ctx context.Context, username, password string) (*model.Credential, error) {
	var resp loginResponse
	if err := m.call(ctx, http.MethodPost, pathLogin, nil, loginRequest{Username: username, Password: password}, &resp, false); err != nil {
		return nil, err
	}
	cred := &model.Credential{
		AccessToken:  resp.Access,
		RefreshToken: resp.Refresh,
		Subject:      resp.Username,
		Role:         model.Role(resp.Role),
		ExpiresAt:    tokenExpiry(resp.Access),
	}

	m.setCredential(cred)

	if cred.Role == model.RoleShopAdmin {
		var shop myShopResponse
		if err := m.call(ctx, http.MethodGet, pathMyShop, nil, nil, &shop, true); err != nil {
			// non-fatal: the admin proceeds without an owning-shop id
			m.log.Warn("owning-shop lookup failed", zap.String("subject", cred.Subject), zap.Error(err))
		} else {
			cred.ShopID = shop.ShopID
			m.setCredential(cred)
		}
	}

	m.kickRenewLoop()
	m.log.Info("login",
		zap.String("subject", cred.Subject),
		zap.String("role", string(cred.Role)),
		zap.Time("expires_at", cred.ExpiresAt),
	)
	c := *cred
	return &c, nil
}

// Logout destroys the credential and signals dependent components.
func (m *Manager) Logout() {
	m.endSession("logout")
}

// Authorize attaches the current access token as a bearer credential.
// No-op when anonymous.
func (m *Manager) Authorize(req *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred != nil && m.cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cred.AccessToken)
	}
}

// Do issues an authorized JSON call. On a 401 it performs at most one
// coalesced renewal and replays the request once; a second 401 after a
// successful renewal ends the session. The retry budget travels in the
// request context, never on a shared request object.
func (m *Manager) Do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	return m.doAuthorized(withRetryBudget(ctx, 1), method, path, header, body, out)
}

func (m *Manager) doAuthorized(ctx context.Context, method, path string, header http.Header, body, out any) error {
	err := m.call(ctx, method, path, header, body, out, true)
	if !isUnauthorized(err) {
		return err
	}

	if retryBudget(ctx) < 1 {
		// retried once already; a perpetually-invalid token is fatal
		m.endSession("retried request unauthorized")
		return fmt.Errorf("%s %s: %w", method, path, errs.ErrSessionExpired)
	}
	if err := m.renewOnce(ctx); err != nil {
		return err
	}
	return m.doAuthorized(spendRetry(ctx), method, path, header, body, out)
}

// renewOnce exchanges the refresh token for a new access token. Concurrent
// callers (background timer, multiple 401s) share one in-flight renewal.
// Any renewal failure destroys the credential.
func (m *Manager) renewOnce(ctx context.Context) error {
	_, err, _ := m.renew.Do("renew", func() (any, error) {
		cred := m.Current()
		if !cred.Valid() {
			return nil, errs.ErrSessionExpired
		}
		var resp struct {
			Access string `json:"access"`
		}
		req := struct {
			Refresh string `json:"refresh"`
		}{Refresh: cred.RefreshToken}

		if err := m.call(ctx, http.MethodPost, pathRefresh, nil, req, &resp, false); err != nil || resp.Access == "" {
			m.endSession("renewal failed")
			m.log.Warn("token renewal failed", zap.Error(err))
			return nil, errs.ErrSessionExpired
		}

		// access token replaced in place; identity claims are immutable
		cred.AccessToken = resp.Access
		cred.ExpiresAt = tokenExpiry(resp.Access)
		m.setCredential(cred)
		m.log.Debug("token renewed", zap.Time("expires_at", cred.ExpiresAt))
		return nil, nil
	})
	return err
}

// StartAutoRenew runs a background loop renewing the access token shortly
// before its expiry, so idle sessions stay alive until ctx is cancelled.
// Renewal keeps running while the process is otherwise idle; stopping it is
// the caller's decision via ctx.
func (m *Manager) StartAutoRenew(ctx context.Context) {
	go m.autoRenewLoop(ctx)
}

func (m *Manager) autoRenewLoop(ctx context.Context) {
	for {
		wait := m.renewWait()
		if wait < 0 {
			// anonymous: sleep until a login kicks us
			select {
			case <-ctx.Done():
				return
			case <-m.kick:
				continue
			}
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-m.kick:
			t.Stop()
			continue
		case <-t.C:
		}
		if m.Current().Valid() {
			if err := m.renewOnce(ctx); err != nil {
				m.log.Warn("background renewal ended session", zap.Error(err))
			}
		}
	}
}

// renewWait returns how long to sleep before the next renewal, or a negative
// duration when anonymous.
func (m *Manager) renewWait() time.Duration {
	cred := m.Current()
	if !cred.Valid() {
		return -1
	}
	wait := time.Until(cred.ExpiresAt) - m.cfg.RenewLead
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func (m *Manager) kickRenewLoop() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Manager) setCredential(c *model.Credential) {
	cpy := *c
	m.mu.Lock()
	m.cred = &cpy
	m.mu.Unlock()
	if err := m.store.Save(&cpy); err != nil {
		m.log.Error("persist credential", zap.Error(err))
	}
}

// endSession destroys the credential and fires session-end hooks exactly
// once per established session.
func (m *Manager) endSession(reason string) {
	m.mu.Lock()
	had := m.cred != nil
	m.cred = nil
	m.mu.Unlock()
	if !had {
		return
	}
	if err := m.store.Clear(); err != nil {
		m.log.Error("clear credential", zap.Error(err))
	}
	m.log.Info("session ended", zap.String("reason", reason))

	m.hookMu.Lock()
	hooks := append([]func(){}, m.onEnd...)
	m.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// tokenExpiry reads the exp claim without validating the signature; the
// client only schedules renewal from it.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(fallbackTokenTTL)
}
