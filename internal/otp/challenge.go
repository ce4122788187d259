package otp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key has exhausted its request window.
var ErrRateLimited = errors.New("otp request limit exceeded")

const (
	// RequestWindow is the sliding window OTP requests are counted in.
	RequestWindow = time.Minute
	// MaxRequests is the number of requests allowed per window per key.
	MaxRequests = 3
	// MaxAttempts is the number of failed verifications before lockout.
	MaxAttempts = 5
)

// ChallengeStore tracks OTP request throttling and verification attempts
// per (shop, email) key. Memory backs single-instance deployments; Redis
// backs multi-instance ones.
type ChallengeStore interface {
	// EnforceRequestLimit records a request and fails with ErrRateLimited
	// when the window already holds MaxRequests entries.
	EnforceRequestLimit(ctx context.Context, key string) error
	// ResetAttempts zeroes the attempt counter with the given expiry,
	// called whenever a fresh code is issued.
	ResetAttempts(ctx context.Context, key string, expiresAt time.Time) error
	// RegisterFailure increments the attempt counter if one exists.
	RegisterFailure(ctx context.Context, key string) error
	// HasExceededAttempts reports whether an unexpired counter has reached
	// MaxAttempts.
	HasExceededAttempts(ctx context.Context, key string) (bool, error)
	// Clear drops the attempt counter after a successful verification.
	Clear(ctx context.Context, key string) error
}

// Key builds the throttle key for a shop and a normalized email.
func Key(shopID, email string) string {
	return shopID + ":" + NormalizeEmail(email)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type attemptState struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is the process-local ChallengeStore. All read-modify-write
// cycles are serialized under one mutex; expired entries are deleted
// lazily on access, never swept.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	attempts map[string]attemptState
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string][]time.Time),
		attempts: make(map[string]attemptState),
		now:      time.Now,
	}
}

func (s *MemoryStore) EnforceRequestLimit(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.requests[key][:0]
	for _, ts := range s.requests[key] {
		if now.Sub(ts) < RequestWindow {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= MaxRequests {
		s.requests[key] = kept
		return ErrRateLimited
	}

	s.requests[key] = append(kept, now)
	return nil
}

func (s *MemoryStore) ResetAttempts(_ context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[key] = attemptState{count: 0, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RegisterFailure(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[key]
	if !ok {
		return nil
	}
	entry.count++
	s.attempts[key] = entry
	return nil
}

func (s *MemoryStore) HasExceededAttempts(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[key]
	if !ok {
		return false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.attempts, key)
		return false, nil
	}
	return entry.count >= MaxAttempts, nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.attempts, key)
	return nil
}
