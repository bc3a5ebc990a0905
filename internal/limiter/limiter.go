// Package limiter defines interfaces and implementations for login rate limiting.
package limiter

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

type bucket struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with a sliding window and lockout. Used by
// the stub API; a shared deployment would back this with a database instead.
type Memory struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs an in-memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		buckets:  make(map[string]*bucket),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func key(username string, ipHash []byte) string {
	return username + "|" + string(ipHash)
}

// Allow reports whether login attempts are currently permitted for (username, ip).
func (m *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	now := m.now()
	if b.blockedUntil.After(now) {
		return false, b.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters after a successful login.
func (m *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key(username, ipHash))
	return nil
}

// Failure records a failed attempt; crossing the threshold inside the window
// places a temporary block.
func (m *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(username, ipHash)
	now := m.now()
	b, ok := m.buckets[k]
	if !ok || now.Sub(b.windowStart) > m.window {
		b = &bucket{windowStart: now}
		m.buckets[k] = b
	}
	b.fails++
	if b.fails >= m.maxFails {
		b.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
