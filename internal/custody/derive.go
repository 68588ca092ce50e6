package custody

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Wallet is a derived signing keypair. Address is the base58-encoded public
// key; Seed is the 32-byte ed25519 seed the envelope ciphers protect.
type Wallet struct {
	Address string
	Seed    []byte
}

// DeriveWallet derives a custodial wallet deterministically from the
// platform seed prefix and a user identifier. Pure function: the address is
// always re-derivable from the same inputs, which is the recovery path when
// an encrypted seed envelope is lost.
func DeriveWallet(seedPrefix, userID string) Wallet {
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s-%s", seedPrefix, userID)))
	key := ed25519.NewKeyFromSeed(seed[:])
	pub := key.Public().(ed25519.PublicKey)
	return Wallet{
		Address: base58.Encode(pub),
		Seed:    seed[:],
	}
}

// SigningKey rebuilds the full ed25519 private key from a stored seed.
func SigningKey(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// ValidAddress reports whether s decodes as a 32-byte base58 public key.
func ValidAddress(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == ed25519.PublicKeySize
}
