// Package mocks provides hand-rolled in-memory mocks for the usecase
// collaborator interfaces. Default behavior is a working in-memory store;
// individual methods are overridable through the Func fields.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
)

// MockTransaction is a no-op transaction recording commit/rollback calls.
type MockTransaction struct {
	Committed  bool
	RolledBack bool

	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	if t.CommitFunc != nil {
		return t.CommitFunc(ctx)
	}
	t.Committed = true
	return nil
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	if t.RollbackFunc != nil {
		return t.RollbackFunc(ctx)
	}
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

// MockTransactionManager hands out MockTransactions.
type MockTransactionManager struct {
	mu           sync.Mutex
	Transactions []*MockTransaction

	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &MockTransaction{}
	m.Transactions = append(m.Transactions, tx)
	return tx, nil
}

// MockMovementRepository is an in-memory MovementRepository.
type MockMovementRepository struct {
	mu        sync.RWMutex
	movements map[string]*domain.BankMovement // keyed by fingerprint

	CreateFunc           func(ctx context.Context, tx usecase.Transaction, movement *domain.BankMovement) error
	GetByIDFunc          func(ctx context.Context, id string) (*domain.BankMovement, error)
	GetByFingerprintFunc func(ctx context.Context, fingerprint string) (*domain.BankMovement, error)
	UpdateStatusFunc     func(ctx context.Context, id string, status domain.MovementStatus) error
}

func NewMockMovementRepository() *MockMovementRepository {
	return &MockMovementRepository{movements: make(map[string]*domain.BankMovement)}
}

func (m *MockMovementRepository) Create(ctx context.Context, tx usecase.Transaction, movement *domain.BankMovement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, movement)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.movements[movement.Fingerprint]; ok {
		return domain.ErrDuplicateFingerprint
	}
	m.movements[movement.Fingerprint] = movement
	return nil
}

func (m *MockMovementRepository) GetByID(ctx context.Context, id string) (*domain.BankMovement, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, movement := range m.movements {
		if movement.ID == id {
			return movement, nil
		}
	}
	return nil, domain.ErrMovementNotFound
}

func (m *MockMovementRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.BankMovement, error) {
	if m.GetByFingerprintFunc != nil {
		return m.GetByFingerprintFunc(ctx, fingerprint)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if movement, ok := m.movements[fingerprint]; ok {
		return movement, nil
	}
	return nil, domain.ErrMovementNotFound
}

func (m *MockMovementRepository) UpdateStatus(ctx context.Context, id string, status domain.MovementStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, movement := range m.movements {
		if movement.ID == id {
			movement.Status = status
			return nil
		}
	}
	return domain.ErrMovementNotFound
}

// All returns every stored movement.
func (m *MockMovementRepository) All() []*domain.BankMovement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.BankMovement, 0, len(m.movements))
	for _, movement := range m.movements {
		out = append(out, movement)
	}
	return out
}

// MockInvoiceRepository is an in-memory InvoiceRepository keyed by invoice
// number, which doubles as the variable symbol in tests.
type MockInvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[string]*domain.Invoice

	FindByVariableSymbolForUpdateFunc func(ctx context.Context, tx usecase.Transaction, symbol string) (*domain.Invoice, error)
	GetByIDForUpdateFunc              func(ctx context.Context, tx usecase.Transaction, id string) (*domain.Invoice, error)
	ListUnpaidFunc                    func(ctx context.Context) ([]*domain.Invoice, error)
	MarkPaidFunc                      func(ctx context.Context, tx usecase.Transaction, id string, payDate time.Time) error
	UpdatePayAlertStatusFunc          func(ctx context.Context, tx usecase.Transaction, id string, status domain.PayAlertStatus) error
}

func NewMockInvoiceRepository() *MockInvoiceRepository {
	return &MockInvoiceRepository{invoices: make(map[string]*domain.Invoice)}
}

// Put stores an invoice under its number.
func (m *MockInvoiceRepository) Put(invoice *domain.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[invoice.Number] = invoice
}

func (m *MockInvoiceRepository) FindByVariableSymbolForUpdate(ctx context.Context, tx usecase.Transaction, symbol string) (*domain.Invoice, error) {
	if m.FindByVariableSymbolForUpdateFunc != nil {
		return m.FindByVariableSymbolForUpdateFunc(ctx, tx, symbol)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if invoice, ok := m.invoices[symbol]; ok {
		return invoice, nil
	}
	return nil, domain.ErrInvoiceNotFound
}

func (m *MockInvoiceRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Invoice, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, invoice := range m.invoices {
		if invoice.ID == id {
			return invoice, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (m *MockInvoiceRepository) ListUnpaid(ctx context.Context) ([]*domain.Invoice, error) {
	if m.ListUnpaidFunc != nil {
		return m.ListUnpaidFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Invoice
	for _, invoice := range m.invoices {
		if !invoice.IsPaid() {
			out = append(out, invoice)
		}
	}
	return out, nil
}

func (m *MockInvoiceRepository) MarkPaid(ctx context.Context, tx usecase.Transaction, id string, payDate time.Time) error {
	if m.MarkPaidFunc != nil {
		return m.MarkPaidFunc(ctx, tx, id, payDate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invoice := range m.invoices {
		if invoice.ID == id {
			invoice.PayDate = &payDate
			invoice.Closed = true
			invoice.Status = domain.InvoiceStatusPaid
			return nil
		}
	}
	return domain.ErrInvoiceNotFound
}

func (m *MockInvoiceRepository) UpdatePayAlertStatus(ctx context.Context, tx usecase.Transaction, id string, status domain.PayAlertStatus) error {
	if m.UpdatePayAlertStatusFunc != nil {
		return m.UpdatePayAlertStatusFunc(ctx, tx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invoice := range m.invoices {
		if invoice.ID == id {
			invoice.PayAlertStatus = status
			return nil
		}
	}
	return domain.ErrInvoiceNotFound
}

// MockHistoryRepository collects history entries in order.
type MockHistoryRepository struct {
	mu      sync.Mutex
	Entries []*domain.InvoiceHistory

	CreateFunc func(ctx context.Context, tx usecase.Transaction, entry *domain.InvoiceHistory) error
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{}
}

func (m *MockHistoryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.InvoiceHistory) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

// MockCurrencyRepository serves currencies from a fixed map.
type MockCurrencyRepository struct {
	Currencies      map[string]*domain.Currency
	DefaultCurrency *domain.Currency

	ByISOCodeFunc func(ctx context.Context, code string) (*domain.Currency, error)
	DefaultFunc   func(ctx context.Context) (*domain.Currency, error)
}

func NewMockCurrencyRepository() *MockCurrencyRepository {
	czk := &domain.Currency{ID: "cur-czk", ISOCode: "CZK", Name: "Czech koruna", IsDefault: true}
	eur := &domain.Currency{ID: "cur-eur", ISOCode: "EUR", Name: "Euro"}
	return &MockCurrencyRepository{
		Currencies:      map[string]*domain.Currency{"CZK": czk, "EUR": eur},
		DefaultCurrency: czk,
	}
}

func (m *MockCurrencyRepository) ByISOCode(ctx context.Context, code string) (*domain.Currency, error) {
	if m.ByISOCodeFunc != nil {
		return m.ByISOCodeFunc(ctx, code)
	}
	if currency, ok := m.Currencies[code]; ok {
		return currency, nil
	}
	return nil, domain.ErrCurrencyNotFound
}

func (m *MockCurrencyRepository) Default(ctx context.Context) (*domain.Currency, error) {
	if m.DefaultFunc != nil {
		return m.DefaultFunc(ctx)
	}
	return m.DefaultCurrency, nil
}

// MockIDGenerator returns sequential ids.
type MockIDGenerator struct {
	mu      sync.Mutex
	counter int

	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%04d", m.counter)
}

// MockMailboxSession serves canned messages.
type MockMailboxSession struct {
	MessagesByID map[string]*usecase.MailMessage
	Closed       bool

	SearchFunc func(ctx context.Context, since time.Time) ([]string, error)
	FetchFunc  func(ctx context.Context, id string) (*usecase.MailMessage, error)
	CloseFunc  func() error
}

func (s *MockMailboxSession) Search(ctx context.Context, since time.Time) ([]string, error) {
	if s.SearchFunc != nil {
		return s.SearchFunc(ctx, since)
	}
	ids := make([]string, 0, len(s.MessagesByID))
	for id := range s.MessagesByID {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *MockMailboxSession) Fetch(ctx context.Context, id string) (*usecase.MailMessage, error) {
	if s.FetchFunc != nil {
		return s.FetchFunc(ctx, id)
	}
	if msg, ok := s.MessagesByID[id]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("no message %s", id)
}

func (s *MockMailboxSession) Close() error {
	if s.CloseFunc != nil {
		return s.CloseFunc()
	}
	s.Closed = true
	return nil
}

// MockMailbox hands out a fixed session.
type MockMailbox struct {
	Session *MockMailboxSession

	ConnectFunc func(ctx context.Context) (usecase.MailboxSession, error)
}

func (m *MockMailbox) Connect(ctx context.Context) (usecase.MailboxSession, error) {
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return m.Session, nil
}

// MockSeenStore is an in-memory SeenStore.
type MockSeenStore struct {
	mu   sync.Mutex
	seen map[string]bool

	SeenFunc func(ctx context.Context, fingerprint string) (bool, error)
	MarkFunc func(ctx context.Context, fingerprint string, ttl time.Duration) error
}

func NewMockSeenStore() *MockSeenStore {
	return &MockSeenStore{seen: make(map[string]bool)}
}

func (m *MockSeenStore) Seen(ctx context.Context, fingerprint string) (bool, error) {
	if m.SeenFunc != nil {
		return m.SeenFunc(ctx, fingerprint)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[fingerprint], nil
}

func (m *MockSeenStore) Mark(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if m.MarkFunc != nil {
		return m.MarkFunc(ctx, fingerprint, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[fingerprint] = true
	return nil
}

// MockRenderer returns fixed file paths.
type MockRenderer struct {
	RenderInvoiceFunc  func(ctx context.Context, invoice *domain.Invoice) (string, error)
	RenderReminderFunc func(ctx context.Context, tier domain.AlertTier, invoice *domain.Invoice, newDueDate time.Time) (string, error)
}

func (m *MockRenderer) RenderInvoice(ctx context.Context, invoice *domain.Invoice) (string, error) {
	if m.RenderInvoiceFunc != nil {
		return m.RenderInvoiceFunc(ctx, invoice)
	}
	return "/tmp/invoice-" + invoice.Number + ".txt", nil
}

func (m *MockRenderer) RenderReminder(ctx context.Context, tier domain.AlertTier, invoice *domain.Invoice, newDueDate time.Time) (string, error) {
	if m.RenderReminderFunc != nil {
		return m.RenderReminderFunc(ctx, tier, invoice, newDueDate)
	}
	return fmt.Sprintf("/tmp/reminder-%d-%s.txt", tier, invoice.Number), nil
}

// MockPayDocumentIssuer records issued pay documents.
type MockPayDocumentIssuer struct {
	mu     sync.Mutex
	Issued []string

	IssuePayDocumentFunc func(ctx context.Context, invoice *domain.Invoice) error
}

func (m *MockPayDocumentIssuer) IssuePayDocument(ctx context.Context, invoice *domain.Invoice) error {
	if m.IssuePayDocumentFunc != nil {
		return m.IssuePayDocumentFunc(ctx, invoice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Issued = append(m.Issued, invoice.ID)
	return nil
}

// MockMailer records sent messages.
type MockMailer struct {
	mu   sync.Mutex
	Sent []usecase.EmailMessage

	SendFunc func(ctx context.Context, msg usecase.EmailMessage) error
}

func (m *MockMailer) Send(ctx context.Context, msg usecase.EmailMessage) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return nil
}

// MockReconciler records reconciled fields.
type MockReconciler struct {
	mu    sync.Mutex
	Calls []string

	ReconcileFunc func(ctx context.Context, fields *domain.MovementFields, fingerprint string) (*domain.BankMovement, error)
}

func (m *MockReconciler) Reconcile(ctx context.Context, fields *domain.MovementFields, fingerprint string) (*domain.BankMovement, error) {
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, fields, fingerprint)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, fingerprint)
	return &domain.BankMovement{
		ID:             fmt.Sprintf("mov-%04d", len(m.Calls)),
		Fingerprint:    fingerprint,
		Status:         domain.MovementSuccess,
		VariableSymbol: fields.VariableSymbol,
		Price:          fields.Price,
		CurrencyISO:    fields.CurrencyCode,
		MovementDate:   fields.Date,
	}, nil
}
