package custody

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

func testLocalCipher(t *testing.T) *LocalCipher {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	c, err := NewLocalCipher(key)
	require.NoError(t, err)
	return c
}

func TestDeriveWalletDeterministic(t *testing.T) {
	t.Parallel()

	a := DeriveWallet("tickettoken", "user-42")
	b := DeriveWallet("tickettoken", "user-42")
	require.Equal(t, a.Address, b.Address)
	require.Equal(t, a.Seed, b.Seed)
	require.Len(t, a.Seed, ed25519.SeedSize)
	require.True(t, ValidAddress(a.Address))

	t.Run("different user different address", func(t *testing.T) {
		other := DeriveWallet("tickettoken", "user-43")
		require.NotEqual(t, a.Address, other.Address)
	})

	t.Run("different prefix different address", func(t *testing.T) {
		other := DeriveWallet("staging", "user-42")
		require.NotEqual(t, a.Address, other.Address)
	})
}

func TestSigningKeyMatchesAddress(t *testing.T) {
	t.Parallel()

	w := DeriveWallet("tickettoken", "user-7")
	key, err := SigningKey(w.Seed)
	require.NoError(t, err)

	msg := []byte("transfer instruction")
	sig := ed25519.Sign(key, msg)
	require.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), msg, sig))

	_, err = SigningKey([]byte("short"))
	require.Error(t, err)
}

func TestVaultRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vault := NewVault(testLocalCipher(t))

	seed := DeriveWallet("tickettoken", "user-1").Seed
	envelope, err := vault.Encrypt(ctx, seed)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(envelope, "local:1:"))

	got, err := vault.Decrypt(ctx, envelope)
	require.NoError(t, err)
	require.Equal(t, seed, got)
}

func TestVaultDecryptFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	vault := NewVault(testLocalCipher(t))

	seed := DeriveWallet("tickettoken", "user-1").Seed
	envelope, err := vault.Encrypt(ctx, seed)
	require.NoError(t, err)

	t.Run("unknown method", func(t *testing.T) {
		_, err := vault.Decrypt(ctx, "vaulted:1:"+strings.SplitN(envelope, ":", 3)[2])
		requireDecryptionError(t, err)
	})

	t.Run("malformed envelope", func(t *testing.T) {
		_, err := vault.Decrypt(ctx, "local:1")
		requireDecryptionError(t, err)
	})

	t.Run("payload not base64", func(t *testing.T) {
		_, err := vault.Decrypt(ctx, "local:1:!!not-base64!!")
		requireDecryptionError(t, err)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		parts := strings.SplitN(envelope, ":", 3)
		payload := []byte(parts[2])
		payload[len(payload)-5] ^= 0x01
		_, err := vault.Decrypt(ctx, parts[0]+":"+parts[1]+":"+string(payload))
		requireDecryptionError(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		otherKey := bytes.Repeat([]byte{0x24}, 32)
		cipher, err := NewLocalCipher(otherKey)
		require.NoError(t, err)
		_, err = NewVault(cipher).Decrypt(ctx, envelope)
		requireDecryptionError(t, err)
	})

	t.Run("never falls back to plaintext", func(t *testing.T) {
		_, err := vault.Decrypt(ctx, string(seed))
		requireDecryptionError(t, err)
	})
}

func TestVaultRotate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	oldCipher := testLocalCipher(t)
	oldVault := NewVault(oldCipher)

	seed := DeriveWallet("tickettoken", "user-9").Seed
	oldEnvelope, err := oldVault.Encrypt(ctx, seed)
	require.NoError(t, err)

	kms := &fakeKMS{}
	newVault := NewVault(NewKMSCipher(kms, "key-2024"), oldCipher)

	rotated, err := newVault.Rotate(ctx, oldEnvelope)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rotated, "kms:key-2024:"))

	got, err := newVault.Decrypt(ctx, rotated)
	require.NoError(t, err)
	require.Equal(t, seed, got)
}

// fakeKMS xors with the key id; enough to prove dispatch and payload
// plumbing without a real service.
type fakeKMS struct{}

func (f *fakeKMS) Encrypt(_ context.Context, keyID string, plaintext []byte) ([]byte, error) {
	return xor(keyID, plaintext), nil
}

func (f *fakeKMS) Decrypt(_ context.Context, keyID string, blob []byte) ([]byte, error) {
	return xor(keyID, blob), nil
}

func xor(keyID string, data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ keyID[i%len(keyID)]
	}
	return out
}

func requireDecryptionError(t *testing.T, err error) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrDecryption)
}
