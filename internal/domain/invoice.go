package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceType discriminates the closed set of invoice document kinds.
type InvoiceType string

const (
	InvoiceRegular  InvoiceType = "REGULAR"
	InvoiceProforma InvoiceType = "PROFORMA"
	InvoiceFix      InvoiceType = "FIX"
	// InvoicePayDocument is the payment confirmation generated after a
	// proforma is paid.
	InvoicePayDocument InvoiceType = "PAY_DOCUMENT"
)

// InvoiceStatus is the overall lifecycle status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusNew  InvoiceStatus = "NEW"
	InvoiceStatusPaid InvoiceStatus = "PAID"
)

// AcceptStatus is one of the two independent approvals an invoice collects
// before it may be escalated.
type AcceptStatus string

const (
	AcceptWaiting  AcceptStatus = "WAITING"
	AcceptAccepted AcceptStatus = "ACCEPTED"
	AcceptDenied   AcceptStatus = "DENIED"
)

// AlertTier is a reminder escalation stage.
type AlertTier int

const (
	TierOne AlertTier = iota + 1
	TierTwo
	TierThree
)

// PayAlertStatus records the highest reminder tier already fired for an invoice.
type PayAlertStatus string

const (
	AlertNone  PayAlertStatus = "NONE"
	AlertOne   PayAlertStatus = "ALERT_ONE"
	AlertTwo   PayAlertStatus = "ALERT_TWO"
	AlertThree PayAlertStatus = "ALERT_THREE"
)

// NextTier returns the tier that would fire next from this status.
// Tiers are strictly sequential; ALERT_THREE has no successor.
func (s PayAlertStatus) NextTier() (AlertTier, bool) {
	switch s {
	case AlertNone:
		return TierOne, true
	case AlertOne:
		return TierTwo, true
	case AlertTwo:
		return TierThree, true
	default:
		return 0, false
	}
}

// StatusForTier maps a fired tier back to the pay-alert status it advances to.
func StatusForTier(tier AlertTier) PayAlertStatus {
	switch tier {
	case TierOne:
		return AlertOne
	case TierTwo:
		return AlertTwo
	case TierThree:
		return AlertThree
	default:
		return AlertNone
	}
}

// Invoice is the subset of the invoicing subsystem's record that the
// reconciliation and escalation engines read and update.
type Invoice struct {
	ID                 string
	Number             string
	Type               InvoiceType
	DueDate            time.Time
	CurrencyISO        string
	BankAccount        string
	BankCode           string
	TotalPrice         decimal.Decimal
	PayDate            *time.Time
	Closed             bool
	Status             InvoiceStatus
	PayAlertStatus     PayAlertStatus
	AcceptStatusFirst  AcceptStatus
	AcceptStatusSecond AcceptStatus
	Recipients         []string
	CreatedAt          time.Time
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool {
	return i.PayDate != nil || i.Status == InvoiceStatusPaid
}

// IsApproved reports whether both accept statuses are ACCEPTED.
func (i *Invoice) IsApproved() bool {
	return i.AcceptStatusFirst == AcceptAccepted && i.AcceptStatusSecond == AcceptAccepted
}

// AlertEligible reports whether the invoice may enter reminder escalation:
// a regular or proforma invoice, unpaid, with both approvals granted.
func (i *Invoice) AlertEligible() bool {
	if i.Type != InvoiceRegular && i.Type != InvoiceProforma {
		return false
	}
	if i.IsPaid() {
		return false
	}
	return i.IsApproved()
}

// FullBankAccount returns the invoice's receiving account in
// "<number>/<bankCode>" form, the same shape the parser extracts.
func (i *Invoice) FullBankAccount() string {
	return i.BankAccount + "/" + i.BankCode
}

// InvoiceHistory is an append-only audit line attached to an invoice.
type InvoiceHistory struct {
	ID          string
	InvoiceID   string
	Description string
	User        *string
	CreatedAt   time.Time
}
