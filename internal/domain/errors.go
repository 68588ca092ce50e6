package domain

import "errors"

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrTierNotFound     = errors.New("tier not found")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrInvalidQuantity  = errors.New("invalid quantity")

	ErrJobNotFound    = errors.New("issuance job not found")
	ErrBatchNotFound  = errors.New("batch not found")
	ErrIssuanceFailed = errors.New("issuance failed")

	ErrProofFormat  = errors.New("proof format invalid")
	ErrProofExpired = errors.New("proof expired")

	ErrDecryption     = errors.New("custody decryption failed")
	ErrWalletNotFound = errors.New("wallet not found")

	ErrMigrationNotFound  = errors.New("migration not found")
	ErrRollbackNotAllowed = errors.New("rollback not allowed")
	ErrTicketNotFound     = errors.New("ticket not found")

	ErrInvalidID = errors.New("invalid id")
)
