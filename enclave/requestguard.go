package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequestID = errors.New("request id must be a UUID")
	ErrStaleRequest     = errors.New("request timestamp outside the accepted window")
	ErrReplayedRequest  = errors.New("request id already used")
	ErrUnknownToken     = errors.New("request id was not issued by this enclave")
)

// maxClockSkew bounds how far in the future a client may stamp a request.
const maxClockSkew = 30 * time.Second

// RequestGuard admits each mutating request id once. A request must be
// stamped no more than maxAge in the past and maxClockSkew in the future, and
// its id is remembered until issuedAt+maxAge, after which the timestamp
// check refuses it. A forgotten id therefore cannot be replayed.
//
// Tokens handed out by IssueToken are remembered until they expire and are
// consumed by the first request that carries them. With requireIssued set,
// only issued tokens are admitted.
type RequestGuard struct {
	mu            sync.Mutex
	seen          map[string]time.Time // id -> forget after
	issued        map[string]time.Time // token -> expires at
	maxAge        time.Duration
	requireIssued bool
	now           func() time.Time
}

func NewRequestGuard(maxAge time.Duration, requireIssued bool) *RequestGuard {
	return &RequestGuard{
		seen:          make(map[string]time.Time),
		issued:        make(map[string]time.Time),
		maxAge:        maxAge,
		requireIssued: requireIssued,
		now:           time.Now,
	}
}

// IssueToken returns a fresh single-use request id valid for maxAge.
func (g *RequestGuard) IssueToken() string {
	token := uuid.NewString()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued[token] = g.now().Add(g.maxAge)
	return token
}

// Admit records id, stamped by the client at issuedAt.
func (g *RequestGuard) Admit(id string, issuedAt time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRequestID, id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if issuedAt.IsZero() || issuedAt.Before(now.Add(-g.maxAge)) || issuedAt.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("%w: %s", ErrStaleRequest, issuedAt.Format(time.RFC3339))
	}
	if _, ok := g.seen[id]; ok {
		return fmt.Errorf("%w: %s", ErrReplayedRequest, id)
	}

	expires, issued := g.issued[id]
	switch {
	case issued && now.After(expires):
		delete(g.issued, id)
		return fmt.Errorf("%w: %s expired", ErrUnknownToken, id)
	case issued:
		delete(g.issued, id)
	case g.requireIssued:
		return fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}

	g.seen[id] = issuedAt.Add(g.maxAge)
	return nil
}

// CleanupExpired forgets ids and tokens that can no longer be admitted and
// returns how many were dropped.
func (g *RequestGuard) CleanupExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for _, m := range []map[string]time.Time{g.seen, g.issued} {
		for id, until := range m {
			if now.After(until) {
				delete(m, id)
				removed++
			}
		}
	}
	return removed
}

// StartExpirationCleanup runs CleanupExpired every interval until ctx is done.
func (g *RequestGuard) StartExpirationCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.CleanupExpired(); n > 0 {
					slog.Debug("Expired request ids removed", "count", n)
				}
			}
		}
	}()
}

func (g *RequestGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *RequestGuard) outstandingTokens() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.issued)
}
