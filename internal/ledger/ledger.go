// Package ledger defines the boundary to the external on-chain ledger. The
// core prepares and tracks interactions with it but never re-implements its
// validation rules; its responses are authoritative for ownership.
package ledger

import (
	"context"
	"crypto/ed25519"
)

// MintRequest asks the ledger to mint one ticket into a wallet.
type MintRequest struct {
	EventID     string
	TierID      string
	OwnerWallet string
}

// MintResult reports the minted ticket's program-derived address and the
// transaction that created it.
type MintResult struct {
	TicketPDA   string
	TxSignature string
}

// TransferRequest moves a ticket between wallets, signed by the current
// owner's key.
type TransferRequest struct {
	TicketPDA  string
	FromWallet string
	ToWallet   string
	Signer     ed25519.PrivateKey
}

// Client is the external ledger collaborator.
type Client interface {
	MintTicket(ctx context.Context, req MintRequest) (MintResult, error)
	TransferTicket(ctx context.Context, req TransferRequest) (string, error)
	BurnTicket(ctx context.Context, ticketPDA string, signer ed25519.PrivateKey) (string, error)
	OwnerOf(ctx context.Context, ticketPDA string) (string, error)
}
