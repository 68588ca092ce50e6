package domain

import "time"

// CustodialWallet is a platform-held signing keypair. The address is a pure
// function of (seed prefix, user id), so losing the encrypted seed is
// recoverable given the same secret material. Immutable after creation;
// rotation replaces the envelope, never the address.
type CustodialWallet struct {
	UserID        string
	Address       string // base58 public key
	EncryptedSeed string // self-describing envelope: method:version:payload
	Method        string
	CreatedAt     time.Time
}
