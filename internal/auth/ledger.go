package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jayjaytrn/order-management-system/models"
)

// Chain is the ledger entry of one rotation chain: every refresh token
// derived from a single login shares its ID.
type Chain struct {
	ID        string
	UserID    string
	Rotation  string
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ledger records the current rotation id of every chain.
//
// Advance must be a single compare-and-set: it succeeds only when presented
// is the chain's current rotation. A stale rotation revokes the chain and
// yields models.ErrReplayedCredential, as does any use of a revoked chain.
type Ledger interface {
	Start(ctx context.Context, chain Chain) error
	Advance(ctx context.Context, chainID, presented, next string, now time.Time) error
	IsRevoked(ctx context.Context, chainID string) (bool, error)
	Revoke(ctx context.Context, chainID string, now time.Time) error
}

type MemoryLedger struct {
	mu     sync.Mutex
	chains map[string]*Chain
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{chains: make(map[string]*Chain)}
}

func (m *MemoryLedger) Start(_ context.Context, chain Chain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain.UpdatedAt = chain.CreatedAt
	m.chains[chain.ID] = &chain
	return nil
}

func (m *MemoryLedger) Advance(_ context.Context, chainID, presented, next string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, ok := m.chains[chainID]
	if !ok {
		return models.ErrMalformedCredential
	}
	if chain.Revoked {
		return models.ErrReplayedCredential
	}
	if chain.Rotation != presented {
		chain.Revoked = true
		chain.UpdatedAt = now
		return models.ErrReplayedCredential
	}
	chain.Rotation = next
	chain.UpdatedAt = now
	return nil
}

// IsRevoked treats unknown chains as live; only an explicit revocation
// blocks access tokens.
func (m *MemoryLedger) IsRevoked(_ context.Context, chainID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, ok := m.chains[chainID]
	return ok && chain.Revoked, nil
}

func (m *MemoryLedger) Revoke(_ context.Context, chainID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chain, ok := m.chains[chainID]; ok {
		chain.Revoked = true
		chain.UpdatedAt = now
	}
	return nil
}
