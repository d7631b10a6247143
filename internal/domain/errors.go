package domain

import "errors"

var (
	// Lookup errors
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrCurrencyNotFound = errors.New("currency not found")
	ErrMovementNotFound = errors.New("bank movement not found")

	// Ingestion errors
	ErrSenderNotAllowed      = errors.New("sender address not in allow-list")
	ErrDuplicateFingerprint  = errors.New("bank movement with this fingerprint already exists")
	ErrMovementNotReviewable = errors.New("only non-SUCCESS movements can be marked DONE")
)
