package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementStatus is the terminal classification a bank movement receives
// during reconciliation.
type MovementStatus string

const (
	// MovementNotProcessed is the initial status of a freshly ingested movement.
	MovementNotProcessed MovementStatus = "NOT_PROCESSED"
	// MovementBadVariableSymbol means no invoice matches the movement's variable symbol.
	MovementBadVariableSymbol MovementStatus = "BAD_VARIABLE_SYMBOL"
	// MovementIsPaid means the matched invoice was already paid.
	MovementIsPaid MovementStatus = "IS_PAID"
	// MovementBadCurrency means the matched invoice is billed in a different currency.
	MovementBadCurrency MovementStatus = "BAD_CURRENCY"
	// MovementBadAccount means the payment arrived on a different bank account
	// than the invoice names.
	MovementBadAccount MovementStatus = "BAD_ACCOUNT"
	// MovementBadPrice means the paid amount differs from the invoice total.
	MovementBadPrice MovementStatus = "BAD_PRICE"
	// MovementSuccess means the movement paid its invoice in full.
	MovementSuccess MovementStatus = "SUCCESS"
	// MovementSystemError means reconciliation hit an unexpected persistence or
	// domain failure; the movement needs operator attention.
	MovementSystemError MovementStatus = "SYSTEM_ERROR"
	// MovementDone is set manually by an operator after reviewing a
	// non-SUCCESS movement. The reconciler never assigns it.
	MovementDone MovementStatus = "DONE"
)

// MovementFields is the structured output of the notification text parser.
// It is transient; the reconciler turns it into a persistent BankMovement.
type MovementFields struct {
	Date                time.Time
	BankAccount         string
	Price               decimal.Decimal
	CurrencyCode        string
	CustomerBankAccount string
	CustomerName        string
	VariableSymbol      string
	ConstantSymbol      string
	Message             string
	TransactionID       string
}

// BankMovement is a persisted payment notification. Created exactly once per
// unique message fingerprint, never deleted.
type BankMovement struct {
	ID                  string
	Fingerprint         string
	Status              MovementStatus
	InvoiceID           *string
	BankAccountName     string
	BankAccount         string
	CurrencyISO         string
	CurrencyID          string
	CustomerBankAccount string
	CustomerName        *string
	VariableSymbol      string
	ConstantSymbol      *string
	Message             *string
	Price               decimal.Decimal
	MovementDate        time.Time
	CreatedAt           time.Time
}
