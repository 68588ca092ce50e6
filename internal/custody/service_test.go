package custody

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type fakeWalletRepo struct {
	byUser  map[string]domain.CustodialWallet
	creates int
	updates int
	raceRow *domain.CustodialWallet // simulates losing the insert race: GetWallet misses, CreateWallet returns this row
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{byUser: make(map[string]domain.CustodialWallet)}
}

func (r *fakeWalletRepo) GetWallet(_ context.Context, userID string) (*domain.CustodialWallet, error) {
	if r.raceRow != nil && r.raceRow.UserID == userID {
		return nil, nil
	}
	if w, ok := r.byUser[userID]; ok {
		return &w, nil
	}
	return nil, nil
}

func (r *fakeWalletRepo) GetWalletByAddress(_ context.Context, address string) (*domain.CustodialWallet, error) {
	for _, w := range r.byUser {
		if w.Address == address {
			return &w, nil
		}
	}
	return nil, nil
}

func (r *fakeWalletRepo) CreateWallet(_ context.Context, wallet domain.CustodialWallet) (domain.CustodialWallet, error) {
	r.creates++
	if r.raceRow != nil && r.raceRow.UserID == wallet.UserID {
		return *r.raceRow, nil
	}
	r.byUser[wallet.UserID] = wallet
	return wallet, nil
}

func (r *fakeWalletRepo) UpdateEnvelope(_ context.Context, userID, envelope, method string) error {
	w, ok := r.byUser[userID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.EncryptedSeed = envelope
	w.Method = method
	r.byUser[userID] = w
	r.updates++
	return nil
}

func testService(t *testing.T, repo *fakeWalletRepo, vault *Vault) *Service {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewService(repo, vault, "tickettoken", clk, zerolog.Nop())
}

func TestServiceEnsureWallet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first request derives and stores the wallet", func(t *testing.T) {
		repo := newFakeWalletRepo()
		vault := NewVault(testLocalCipher(t))
		svc := testService(t, repo, vault)

		wallet, err := svc.EnsureWallet(ctx, "user-1")
		require.NoError(t, err)

		derived := DeriveWallet("tickettoken", "user-1")
		require.Equal(t, derived.Address, wallet.Address)
		require.Equal(t, "local", wallet.Method)
		require.Equal(t, 1, repo.creates)

		seed, err := vault.Decrypt(ctx, wallet.EncryptedSeed)
		require.NoError(t, err)
		require.Equal(t, derived.Seed, seed)
	})

	t.Run("second request returns the existing wallet", func(t *testing.T) {
		repo := newFakeWalletRepo()
		svc := testService(t, repo, NewVault(testLocalCipher(t)))

		first, err := svc.EnsureWallet(ctx, "user-1")
		require.NoError(t, err)
		second, err := svc.EnsureWallet(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, 1, repo.creates)
	})

	t.Run("losing the insert race returns the winning row", func(t *testing.T) {
		repo := newFakeWalletRepo()
		vault := NewVault(testLocalCipher(t))
		svc := testService(t, repo, vault)

		winner := domain.CustodialWallet{
			UserID:        "user-1",
			Address:       DeriveWallet("tickettoken", "user-1").Address,
			EncryptedSeed: "local:1:winner-envelope",
			Method:        "local",
		}
		repo.raceRow = &winner

		wallet, err := svc.EnsureWallet(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, winner, wallet)
	})
}

func TestServiceRotate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	localCipher := testLocalCipher(t)
	repo := newFakeWalletRepo()
	localSvc := testService(t, repo, NewVault(localCipher))

	created, err := localSvc.EnsureWallet(ctx, "user-1")
	require.NoError(t, err)

	kmsVault := NewVault(NewKMSCipher(&fakeKMS{}, "key-2026"), localCipher)
	kmsSvc := testService(t, repo, kmsVault)

	rotated, err := kmsSvc.Rotate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, created.Address, rotated.Address)
	require.Equal(t, "kms", rotated.Method)
	require.NotEqual(t, created.EncryptedSeed, rotated.EncryptedSeed)
	require.Equal(t, 1, repo.updates)

	// The rotated envelope is what the repository now holds, and it still
	// yields the original key.
	stored, err := repo.GetWallet(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, rotated.EncryptedSeed, stored.EncryptedSeed)

	key, err := kmsSvc.SigningKeyForAddress(ctx, created.Address)
	require.NoError(t, err)
	require.Equal(t, created.Address, base58.Encode(key.Public().(ed25519.PublicKey)))

	t.Run("unknown user", func(t *testing.T) {
		_, err := kmsSvc.Rotate(ctx, "ghost")
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
	})
}

func TestServiceSigningKeyForAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := newFakeWalletRepo()
	svc := testService(t, repo, NewVault(testLocalCipher(t)))

	wallet, err := svc.EnsureWallet(ctx, "user-1")
	require.NoError(t, err)

	key, err := svc.SigningKeyForAddress(ctx, wallet.Address)
	require.NoError(t, err)
	require.Equal(t, wallet.Address, base58.Encode(key.Public().(ed25519.PublicKey)))

	t.Run("unknown address", func(t *testing.T) {
		_, err := svc.SigningKeyForAddress(ctx, "no-such-address")
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
	})

	t.Run("corrupt envelope is a decryption error", func(t *testing.T) {
		w := repo.byUser["user-1"]
		w.EncryptedSeed = "local:1:!!corrupt!!"
		repo.byUser["user-1"] = w

		_, err := svc.SigningKeyForAddress(ctx, wallet.Address)
		requireDecryptionError(t, err)
	})
}
