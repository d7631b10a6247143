package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/usecase"
	"github.com/iho/paywatch/internal/usecase/mocks"
)

const notificationMail = `Vážený kliente,
na Vašem účtu došlo k těmto pohybům:

Dne 12.03.2026 byla na účtu 2900123456/2010 připsána částka
Fio banka, a.s.
V Celnici 1028/10, Praha 1
IČ: 61858374
zapsaná v obchodním rejstříku
vedeném Městským soudem v Praze
+1 234,50 CZK
protiúčet 123456789/0800
název protiúčtu Jan Novák
VS: 2026001
zůstatek na účtu +10 000,00 CZK

Dne 12.03.2026 byla na účtu 2900123456/2010 připsána částka
Fio banka, a.s.
V Celnici 1028/10, Praha 1
IČ: 61858374
zapsaná v obchodním rejstříku
vedeném Městským soudem v Praze
+500,00 CZK
protiúčet 987654321/0100
název protiúčtu Firma s.r.o.
VS: 2026002
zůstatek na účtu +10 500,00 CZK`

func testIngestConfig() usecase.IngestConfig {
	return usecase.IngestConfig{
		AllowedSenders: []string{"automat@fio.cz"},
		SearchWindow:   7 * 24 * time.Hour,
		SeenTTL:        30 * 24 * time.Hour,
	}
}

func newIngestSession(messages map[string]*usecase.MailMessage) (*mocks.MockMailbox, *mocks.MockMailboxSession) {
	session := &mocks.MockMailboxSession{MessagesByID: messages}
	return &mocks.MockMailbox{Session: session}, session
}

func TestSweep_ReconcilesEveryBlock(t *testing.T) {
	mailbox, session := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: notificationMail},
	})
	reconciler := &mocks.MockReconciler{}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, mocks.NewMockSeenStore(), testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Messages != 1 || report.Blocks != 2 {
		t.Errorf("expected 1 message with 2 blocks, got messages=%d blocks=%d", report.Messages, report.Blocks)
	}
	if len(reconciler.Calls) != 2 {
		t.Fatalf("expected 2 reconcile calls, got %d", len(reconciler.Calls))
	}
	if reconciler.Calls[0] == reconciler.Calls[1] {
		t.Error("expected distinct fingerprints per block")
	}
	if reconciler.Calls[0] != usecase.Fingerprint("<msg-1@fio.cz>", 0) {
		t.Error("fingerprint must derive from message id and block index")
	}
	if !session.Closed {
		t.Error("session must be closed after the sweep")
	}
}

func TestSweep_SenderNotAllowed(t *testing.T) {
	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<spam-1>", From: "attacker@example.com", Body: notificationMail},
	})
	reconciler := &mocks.MockReconciler{}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, nil, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.RejectedSenders != 1 {
		t.Errorf("expected 1 rejected sender, got %d", report.RejectedSenders)
	}
	if len(reconciler.Calls) != 0 {
		t.Errorf("rejected message must not be parsed, got %d reconcile calls", len(reconciler.Calls))
	}
}

func TestSweep_SenderMatchIsCaseInsensitive(t *testing.T) {
	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1>", From: "Automat@Fio.CZ", Body: notificationMail},
	})
	reconciler := &mocks.MockReconciler{}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, nil, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.RejectedSenders != 0 || len(reconciler.Calls) != 2 {
		t.Errorf("expected case-insensitive sender match, got rejected=%d calls=%d",
			report.RejectedSenders, len(reconciler.Calls))
	}
}

func TestSweep_SeenFingerprintSkipsBlock(t *testing.T) {
	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: notificationMail},
	})
	reconciler := &mocks.MockReconciler{}
	seen := mocks.NewMockSeenStore()

	// Pre-mark the first block as processed.
	if err := seen.Mark(context.Background(), usecase.Fingerprint("<msg-1@fio.cz>", 0), time.Hour); err != nil {
		t.Fatal(err)
	}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, seen, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", report.Duplicates)
	}
	if len(reconciler.Calls) != 1 {
		t.Errorf("expected only the unseen block reconciled, got %d calls", len(reconciler.Calls))
	}
}

func TestSweep_SeenStoreFailureFallsThrough(t *testing.T) {
	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: notificationMail},
	})
	reconciler := &mocks.MockReconciler{}
	seen := mocks.NewMockSeenStore()
	seen.SeenFunc = func(ctx context.Context, fingerprint string) (bool, error) {
		return false, errors.New("connection refused")
	}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, seen, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("seen-store outage must not fail the sweep: %v", err)
	}

	if len(reconciler.Calls) != 2 {
		t.Errorf("expected database dedup fallback, got %d reconcile calls", len(reconciler.Calls))
	}
	if report.Duplicates != 0 {
		t.Errorf("expected no duplicates, got %d", report.Duplicates)
	}
}

func TestSweep_ReconcileFailureLeavesBlockUnmarked(t *testing.T) {
	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: notificationMail},
	})
	seen := mocks.NewMockSeenStore()

	failing := &mocks.MockReconciler{
		ReconcileFunc: func(ctx context.Context, fields *domain.MovementFields, fingerprint string) (*domain.BankMovement, error) {
			return nil, errors.New("connection refused")
		},
	}

	uc := usecase.NewIngestUseCase(mailbox, failing, seen, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ReconcileErrors != 2 {
		t.Fatalf("expected 2 reconcile errors, got %d", report.ReconcileErrors)
	}

	// The database came back; both blocks must be retried, not skipped.
	working := &mocks.MockReconciler{}
	uc = usecase.NewIngestUseCase(mailbox, working, seen, testIngestConfig(), zerolog.Nop())

	report, err = uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Duplicates != 0 {
		t.Errorf("failed blocks must not count as duplicates, got %d", report.Duplicates)
	}
	if len(working.Calls) != 2 {
		t.Fatalf("blocks whose reconciliation failed must be retried, got %d reconcile calls", len(working.Calls))
	}

	// Once reconciled, the third sweep short-circuits on the seen store.
	uc = usecase.NewIngestUseCase(mailbox, working, seen, testIngestConfig(), zerolog.Nop())

	report, err = uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Duplicates != 2 || len(working.Calls) != 2 {
		t.Errorf("expected both blocks deduplicated, got duplicates=%d calls=%d",
			report.Duplicates, len(working.Calls))
	}
}

func TestSweep_ParseFailureIsolated(t *testing.T) {
	body := notificationMail + "\n\nDne 13.03.2026 byla na účtu 2900123456/2010 připsána částka\ngarbage"

	mailbox, _ := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: body},
	})
	reconciler := &mocks.MockReconciler{}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, nil, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Blocks != 3 || report.ParseFailures != 1 {
		t.Errorf("expected 3 blocks with 1 parse failure, got blocks=%d failures=%d",
			report.Blocks, report.ParseFailures)
	}
	if len(reconciler.Calls) != 2 {
		t.Errorf("the well-formed blocks must still reconcile, got %d calls", len(reconciler.Calls))
	}
}

func TestSweep_FetchFailureIsolated(t *testing.T) {
	mailbox, session := newIngestSession(map[string]*usecase.MailMessage{
		"1": {MessageID: "<msg-1@fio.cz>", From: "automat@fio.cz", Body: notificationMail},
	})
	session.SearchFunc = func(ctx context.Context, since time.Time) ([]string, error) {
		return []string{"1", "2"}, nil
	}
	reconciler := &mocks.MockReconciler{}

	uc := usecase.NewIngestUseCase(mailbox, reconciler, nil, testIngestConfig(), zerolog.Nop())

	report, err := uc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.FetchErrors != 1 || report.Messages != 1 {
		t.Errorf("expected 1 fetch error and 1 processed message, got errors=%d messages=%d",
			report.FetchErrors, report.Messages)
	}
}

func TestSweep_ConnectFailureFailsSweep(t *testing.T) {
	mailbox := &mocks.MockMailbox{
		ConnectFunc: func(ctx context.Context) (usecase.MailboxSession, error) {
			return nil, errors.New("connection timed out")
		},
	}

	uc := usecase.NewIngestUseCase(mailbox, &mocks.MockReconciler{}, nil, testIngestConfig(), zerolog.Nop())

	if _, err := uc.Sweep(context.Background()); err == nil {
		t.Fatal("expected error when the mailbox is unreachable")
	}
}

func TestFingerprint(t *testing.T) {
	a := usecase.Fingerprint("<msg-1>", 0)
	b := usecase.Fingerprint("<msg-1>", 0)
	c := usecase.Fingerprint("<msg-1>", 1)
	d := usecase.Fingerprint("<msg-2>", 0)

	if a != b {
		t.Error("fingerprint must be deterministic")
	}
	if a == c || a == d {
		t.Error("fingerprint must differ across blocks and messages")
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex digest, got %d chars", len(a))
	}
}
