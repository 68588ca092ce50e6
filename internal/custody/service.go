package custody

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type WalletRepository interface {
	GetWallet(ctx context.Context, userID string) (*domain.CustodialWallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*domain.CustodialWallet, error)
	CreateWallet(ctx context.Context, wallet domain.CustodialWallet) (domain.CustodialWallet, error)
	UpdateEnvelope(ctx context.Context, userID, envelope, method string) error
}

// Service owns custodial wallet records: first request derives and stores a
// wallet, later requests return the existing one. Addresses never change;
// only the encryption envelope can be rotated.
type Service struct {
	repo       WalletRepository
	vault      *Vault
	seedPrefix string
	clock      clock.Clock
	log        zerolog.Logger
}

func NewService(repo WalletRepository, vault *Vault, seedPrefix string, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		vault:      vault,
		seedPrefix: seedPrefix,
		clock:      clk,
		log:        log.With().Str("component", "custody").Logger(),
	}
}

// EnsureWallet returns the user's custodial wallet, creating it on first
// request. Creation races resolve to whichever row won the insert; the
// derived address is identical either way.
func (s *Service) EnsureWallet(ctx context.Context, userID string) (domain.CustodialWallet, error) {
	existing, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return domain.CustodialWallet{}, fmt.Errorf("get wallet: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	derived := DeriveWallet(s.seedPrefix, userID)
	envelope, err := s.vault.Encrypt(ctx, derived.Seed)
	if err != nil {
		return domain.CustodialWallet{}, fmt.Errorf("encrypt seed: %w", err)
	}

	wallet := domain.CustodialWallet{
		UserID:        userID,
		Address:       derived.Address,
		EncryptedSeed: envelope,
		Method:        s.vault.Method(),
		CreatedAt:     s.clock.Now(),
	}
	created, err := s.repo.CreateWallet(ctx, wallet)
	if err != nil {
		return domain.CustodialWallet{}, fmt.Errorf("create wallet: %w", err)
	}
	s.log.Info().Str("user_id", userID).Str("address", created.Address).Msg("custodial wallet ready")
	return created, nil
}

// Rotate re-encrypts the stored seed envelope under the vault's current
// method. The address is untouched.
func (s *Service) Rotate(ctx context.Context, userID string) (domain.CustodialWallet, error) {
	wallet, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return domain.CustodialWallet{}, fmt.Errorf("get wallet: %w", err)
	}
	if wallet == nil {
		return domain.CustodialWallet{}, domain.ErrWalletNotFound
	}

	envelope, err := s.vault.Rotate(ctx, wallet.EncryptedSeed)
	if err != nil {
		return domain.CustodialWallet{}, err
	}
	if err := s.repo.UpdateEnvelope(ctx, userID, envelope, s.vault.Method()); err != nil {
		return domain.CustodialWallet{}, fmt.Errorf("update envelope: %w", err)
	}
	wallet.EncryptedSeed = envelope
	wallet.Method = s.vault.Method()
	s.log.Info().Str("user_id", userID).Msg("seed envelope rotated")
	return *wallet, nil
}

// SigningKeyForAddress resolves a custodial wallet by public address and
// returns its signing key.
func (s *Service) SigningKeyForAddress(ctx context.Context, address string) (ed25519.PrivateKey, error) {
	wallet, err := s.repo.GetWalletByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get wallet by address: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return s.SigningKey(ctx, *wallet)
}

// SigningKey decrypts the wallet's seed and rebuilds the ed25519 private
// key. Decryption failures are custody integrity failures; callers must
// surface them, never mask them.
func (s *Service) SigningKey(ctx context.Context, wallet domain.CustodialWallet) (ed25519.PrivateKey, error) {
	seed, err := s.vault.Decrypt(ctx, wallet.EncryptedSeed)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", wallet.UserID).Msg("seed decryption failed")
		return nil, err
	}
	return SigningKey(seed)
}
