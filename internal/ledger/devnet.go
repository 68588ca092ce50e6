package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// Devnet is an in-memory Client for local runs and tests. It fabricates
// base58 PDAs and transaction signatures and tracks ownership so transfer
// and burn behave consistently within a process.
type Devnet struct {
	mu     sync.Mutex
	owners map[string]string // ticketPDA -> wallet
}

var _ Client = (*Devnet)(nil)

func NewDevnet() *Devnet {
	return &Devnet{owners: make(map[string]string)}
}

func (d *Devnet) MintTicket(_ context.Context, req MintRequest) (MintResult, error) {
	pda, err := randomBase58(32)
	if err != nil {
		return MintResult{}, err
	}
	sig, err := randomBase58(64)
	if err != nil {
		return MintResult{}, err
	}
	d.mu.Lock()
	d.owners[pda] = req.OwnerWallet
	d.mu.Unlock()
	return MintResult{TicketPDA: pda, TxSignature: sig}, nil
}

func (d *Devnet) TransferTicket(_ context.Context, req TransferRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owner, ok := d.owners[req.TicketPDA]
	if !ok {
		return "", domain.ErrTicketNotFound
	}
	if owner != req.FromWallet {
		return "", fmt.Errorf("wallet %s does not own ticket %s", req.FromWallet, req.TicketPDA)
	}
	d.owners[req.TicketPDA] = req.ToWallet
	return randomBase58(64)
}

func (d *Devnet) BurnTicket(_ context.Context, ticketPDA string, _ ed25519.PrivateKey) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.owners[ticketPDA]; !ok {
		return "", domain.ErrTicketNotFound
	}
	delete(d.owners, ticketPDA)
	return randomBase58(64)
}

func (d *Devnet) OwnerOf(_ context.Context, ticketPDA string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owner, ok := d.owners[ticketPDA]
	if !ok {
		return "", domain.ErrTicketNotFound
	}
	return owner, nil
}

func randomBase58(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}
