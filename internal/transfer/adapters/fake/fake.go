// Package fake is an in-memory transfer gateway used by tests and local
// development. It honors idempotency keys the way a real provider would.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/mentorhive/mentorhive/internal/fault"
	"github.com/mentorhive/mentorhive/internal/transfer/domain"
)

type Gateway struct {
	mu sync.Mutex

	transfers map[string]*domain.TransferResult
	refunds   map[string]*domain.RefundResult

	// ReadyAccounts marks which accounts pass the readiness probe.
	ReadyAccounts map[string]bool
	// FailTransfers forces Transfer to return a transient error.
	FailTransfers bool
	// RejectTransfers forces Transfer to return a terminal error.
	RejectTransfers bool

	TransferCalls int
	RefundCalls   int

	seq int
}

func New() *Gateway {
	return &Gateway{
		transfers:     map[string]*domain.TransferResult{},
		refunds:       map[string]*domain.RefundResult{},
		ReadyAccounts: map[string]bool{},
	}
}

func (g *Gateway) Name() string { return "fake" }

func (g *Gateway) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.TransferCalls++
	if g.FailTransfers {
		return nil, fault.Transient(domain.ErrProviderDown)
	}
	if g.RejectTransfers {
		return nil, fault.Terminal(domain.ErrProviderRejected)
	}
	if existing, ok := g.transfers[req.IdempotencyKey]; ok {
		return &domain.TransferResult{TransferRef: existing.TransferRef, Replayed: true}, nil
	}

	g.seq++
	result := &domain.TransferResult{TransferRef: fmt.Sprintf("tr_fake_%d", g.seq)}
	g.transfers[req.IdempotencyKey] = result
	return result, nil
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.RefundCalls++
	if existing, ok := g.refunds[req.IdempotencyKey]; ok {
		return existing, nil
	}

	g.seq++
	result := &domain.RefundResult{RefundRef: fmt.Sprintf("re_fake_%d", g.seq)}
	g.refunds[req.IdempotencyKey] = result
	return result, nil
}

func (g *Gateway) AccountReady(ctx context.Context, accountID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ReadyAccounts[accountID], nil
}

// TransferCount reports unique transfers executed, replays excluded.
func (g *Gateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transfers)
}
