// Package parser turns raw bank-notification text blocks into structured
// movement fields. It performs no I/O; callers feed it one block per
// transaction and handle errors per block.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/paywatch/internal/domain"
)

// Variant selects the notification layout.
type Variant int

const (
	// VariantDomestic is the CZK layout: slash-delimited counterparty
	// account on the line after the amount, counterparty name next.
	VariantDomestic Variant = iota
	// VariantForeign is the EUR layout: counterparty name first, IBAN
	// account on the following line.
	VariantForeign
)

func (v Variant) String() string {
	if v == VariantForeign {
		return "foreign"
	}
	return "domestic"
}

// Line offsets within a block. The bank pads lines 1-5 with boilerplate.
const (
	lineHeader  = 0
	lineAmount  = 6
	lineFirst   = 7 // counterparty account (domestic) or name (foreign)
	lineSecond  = 8 // counterparty name (domestic) or account (foreign)
	linePurpose = 9

	// purposeWindow bounds how many purpose lines are scanned for symbols.
	purposeWindow = 10
)

var (
	reHeaderDomestic = regexp.MustCompile(`^Dne (\d{2}\.\d{2}\.\d{4}) byla na účtu (\d{1,16}/\d{4}) připsána částka`)
	reHeaderForeign  = regexp.MustCompile(`^Dne (\d{2}\.\d{2}\.\d{4}) byla na účtu (\d{1,16}/\d{4}) zaúčtována platba`)

	reAmount = regexp.MustCompile(`^([+-][\d\s\x{00a0}]+(?:,\d+)?) ([A-Z]{3})$`)

	reAccountDomestic = regexp.MustCompile(`^protiúčet (\d{1,16}/\d{4})$`)
	reAccountForeign  = regexp.MustCompile(`^protiúčet ([A-Z]{2}\d{2}[A-Z0-9]{1,30})$`)
	reCounterName     = regexp.MustCompile(`^název protiúčtu (.+)$`)

	reVariableSymbol = regexp.MustCompile(`^VS: ?(\d+)$`)
	reConstantSymbol = regexp.MustCompile(`^KS: ?(\d+)$`)
	reTransactionID  = regexp.MustCompile(`^ID transakce: ?(\S+)$`)

	// reBalanceFooter marks the end of the purpose run.
	reBalanceFooter = regexp.MustCompile(`^zůstatek na účtu`)
)

// DetectVariant inspects the discriminating phrase on the block's first line.
func DetectVariant(block string) (Variant, error) {
	line := block
	if i := strings.IndexByte(block, '\n'); i >= 0 {
		line = block[:i]
	}
	line = strings.TrimRight(line, "\r")

	switch {
	case reHeaderDomestic.MatchString(line):
		return VariantDomestic, nil
	case reHeaderForeign.MatchString(line):
		return VariantForeign, nil
	default:
		return 0, &ParseError{Field: "header", LineIndex: lineHeader, RawLine: line}
	}
}

// IsHeader reports whether the line opens a new notification block in
// either layout variant.
func IsHeader(line string) bool {
	return reHeaderDomestic.MatchString(line) || reHeaderForeign.MatchString(line)
}

// Parse extracts movement fields from a single notification block.
// Every required field must be present or a ParseError identifying the
// failing field and line is returned.
func Parse(block string, variant Variant) (*domain.MovementFields, error) {
	lines := splitLines(block)

	fields := &domain.MovementFields{}

	if err := parseHeader(lines, variant, fields); err != nil {
		return nil, err
	}
	if err := parseAmount(lines, fields); err != nil {
		return nil, err
	}
	if err := parseCounterparty(lines, variant, fields); err != nil {
		return nil, err
	}
	parsePurpose(lines, fields)

	fields.VariableSymbol = resolveSymbol(fields)

	return fields, nil
}

func splitLines(block string) []string {
	lines := strings.Split(block, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return lines
}

func lineAt(lines []string, idx int) (string, bool) {
	if idx >= len(lines) {
		return "", false
	}
	return lines[idx], true
}

func parseHeader(lines []string, variant Variant, fields *domain.MovementFields) error {
	line, ok := lineAt(lines, lineHeader)
	if !ok {
		return &ParseError{Field: "header", LineIndex: lineHeader}
	}

	re := reHeaderDomestic
	if variant == VariantForeign {
		re = reHeaderForeign
	}

	m := re.FindStringSubmatch(line)
	if m == nil {
		return &ParseError{Field: "header", LineIndex: lineHeader, RawLine: line}
	}

	date, err := time.Parse("02.01.2006", m[1])
	if err != nil {
		return &ParseError{Field: "date", LineIndex: lineHeader, RawLine: line}
	}

	fields.Date = date
	fields.BankAccount = m[2]

	return nil
}

func parseAmount(lines []string, fields *domain.MovementFields) error {
	line, ok := lineAt(lines, lineAmount)
	if !ok {
		return &ParseError{Field: "amount", LineIndex: lineAmount}
	}

	m := reAmount.FindStringSubmatch(line)
	if m == nil {
		return &ParseError{Field: "amount", LineIndex: lineAmount, RawLine: line}
	}

	// Only credits announce incoming payments.
	if !strings.HasPrefix(m[1], "+") {
		return &ParseError{Field: "amount", LineIndex: lineAmount, RawLine: line}
	}

	price, err := ParseAmount(m[1])
	if err != nil {
		return &ParseError{Field: "amount", LineIndex: lineAmount, RawLine: line}
	}

	fields.Price = price
	fields.CurrencyCode = m[2]

	return nil
}

// ParseAmount normalizes a bank-formatted amount: thousands separators are
// plain or non-breaking spaces and the decimal separator is a comma.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimPrefix(raw, "+")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, ",", ".")

	return decimal.NewFromString(s)
}

func parseCounterparty(lines []string, variant Variant, fields *domain.MovementFields) error {
	accountIdx, nameIdx := lineFirst, lineSecond
	reAccount := reAccountDomestic
	if variant == VariantForeign {
		// Foreign notifications flip the order and use IBAN accounts.
		nameIdx, accountIdx = lineFirst, lineSecond
		reAccount = reAccountForeign
	}

	accountLine, ok := lineAt(lines, accountIdx)
	if !ok {
		return &ParseError{Field: "customerBankAccount", LineIndex: accountIdx}
	}
	m := reAccount.FindStringSubmatch(accountLine)
	if m == nil {
		return &ParseError{Field: "customerBankAccount", LineIndex: accountIdx, RawLine: accountLine}
	}
	fields.CustomerBankAccount = m[1]

	nameLine, ok := lineAt(lines, nameIdx)
	if !ok {
		return &ParseError{Field: "customerName", LineIndex: nameIdx}
	}
	m = reCounterName.FindStringSubmatch(nameLine)
	if m == nil {
		return &ParseError{Field: "customerName", LineIndex: nameIdx, RawLine: nameLine}
	}
	fields.CustomerName = strings.TrimSpace(m[1])

	return nil
}

// parsePurpose scans the bounded run of payment-purpose lines for the
// variable symbol, constant symbol and transaction id markers. The run ends
// at a blank line, the balance footer, or after purposeWindow lines.
func parsePurpose(lines []string, fields *domain.MovementFields) {
	var messages []string

	for i := 0; i < purposeWindow; i++ {
		line, ok := lineAt(lines, linePurpose+i)
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "" || reBalanceFooter.MatchString(line) {
			break
		}

		switch {
		case reVariableSymbol.MatchString(line):
			fields.VariableSymbol = reVariableSymbol.FindStringSubmatch(line)[1]
		case reConstantSymbol.MatchString(line):
			fields.ConstantSymbol = reConstantSymbol.FindStringSubmatch(line)[1]
		case reTransactionID.MatchString(line):
			fields.TransactionID = reTransactionID.FindStringSubmatch(line)[1]
		default:
			messages = append(messages, strings.TrimSpace(line))
		}
	}

	fields.Message = strings.Join(messages, " ")
}

// resolveSymbol guarantees a non-empty matching key: the purpose-line
// variable symbol, else the transaction id, else a deterministic hash of
// the movement tuple. The hash fallback can never match a real invoice,
// which deliberately routes the movement to manual review.
func resolveSymbol(fields *domain.MovementFields) string {
	if fields.VariableSymbol != "" {
		return NormalizeSymbol(fields.VariableSymbol)
	}
	if fields.TransactionID != "" {
		return NormalizeSymbol(fields.TransactionID)
	}
	return FallbackSymbol(fields)
}

// NormalizeSymbol strips leading zeros from a symbol, never stripping it
// down to an empty string.
func NormalizeSymbol(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// FallbackSymbol derives a deterministic key from the movement tuple.
func FallbackSymbol(fields *domain.MovementFields) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s",
		fields.Date.Format("2006-01-02"),
		fields.Price.StringFixed(2),
		fields.CurrencyCode,
		fields.CustomerBankAccount,
		fields.CustomerName,
	)

	sum := sha256.Sum256([]byte(input))

	return hex.EncodeToString(sum[:])[:16]
}
