package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type WalletRepository struct {
	pool *pgxpool.Pool
}

func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

const walletColumns = `user_id, address, encrypted_seed, method, created_at`

func (r *WalletRepository) GetWallet(ctx context.Context, userID string) (*domain.CustodialWallet, error) {
	const q = `SELECT ` + walletColumns + ` FROM custodial_wallets WHERE user_id = $1`
	return r.get(ctx, q, userID)
}

func (r *WalletRepository) GetWalletByAddress(ctx context.Context, address string) (*domain.CustodialWallet, error) {
	const q = `SELECT ` + walletColumns + ` FROM custodial_wallets WHERE address = $1`
	return r.get(ctx, q, address)
}

// CreateWallet inserts the wallet or, when a concurrent first request won
// the race, returns the existing row. The derived address is identical for
// the same user either way.
func (r *WalletRepository) CreateWallet(ctx context.Context, wallet domain.CustodialWallet) (domain.CustodialWallet, error) {
	const stmt = `
INSERT INTO custodial_wallets (user_id, address, encrypted_seed, method, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := exec(ctx, r.pool, stmt,
		wallet.UserID, wallet.Address, wallet.EncryptedSeed, wallet.Method, wallet.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.GetWallet(ctx, wallet.UserID)
			if getErr != nil {
				return domain.CustodialWallet{}, getErr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		return domain.CustodialWallet{}, fmt.Errorf("create wallet: %w", err)
	}
	return wallet, nil
}

func (r *WalletRepository) UpdateEnvelope(ctx context.Context, userID, envelope, method string) error {
	const stmt = `UPDATE custodial_wallets SET encrypted_seed = $2, method = $3 WHERE user_id = $1`
	tag, err := exec(ctx, r.pool, stmt, userID, envelope, method)
	if err != nil {
		return fmt.Errorf("update envelope: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (r *WalletRepository) get(ctx context.Context, q string, arg any) (*domain.CustodialWallet, error) {
	var w domain.CustodialWallet
	err := queryRow(ctx, r.pool, q, arg).
		Scan(&w.UserID, &w.Address, &w.EncryptedSeed, &w.Method, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}
