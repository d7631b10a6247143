package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/paywatch/internal/domain"
	"github.com/iho/paywatch/internal/parser"
)

// IngestConfig tunes a mailbox sweep.
type IngestConfig struct {
	// AllowedSenders is the sender allow-list; messages from other
	// addresses are rejected before parsing.
	AllowedSenders []string
	// SearchWindow bounds how far back the mailbox search reaches.
	SearchWindow time.Duration
	// SeenTTL is how long processed fingerprints stay in the fast-path store.
	SeenTTL time.Duration
}

// IngestUseCase sweeps the notification mailbox, splits message bodies into
// per-transaction blocks and feeds them through the parser to the reconciler.
type IngestUseCase struct {
	mailbox    Mailbox
	reconciler Reconciler
	seen       SeenStore
	cfg        IngestConfig
	logger     zerolog.Logger
}

// NewIngestUseCase creates a new IngestUseCase. seen may be nil to disable
// the fast-path fingerprint store.
func NewIngestUseCase(mailbox Mailbox, reconciler Reconciler, seen SeenStore, cfg IngestConfig, logger zerolog.Logger) *IngestUseCase {
	return &IngestUseCase{
		mailbox:    mailbox,
		reconciler: reconciler,
		seen:       seen,
		cfg:        cfg,
		logger:     logger,
	}
}

// Sweep performs one mailbox pass. Per-message and per-block failures are
// recorded in the report and never abort the sweep; only connection and
// search failures are returned as errors.
func (uc *IngestUseCase) Sweep(ctx context.Context) (*SweepReport, error) {
	session, err := uc.mailbox.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect mailbox: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			uc.logger.Warn().Err(cerr).Msg("mailbox disconnect failed")
		}
	}()

	since := time.Now().UTC().Add(-uc.cfg.SearchWindow)

	ids, err := session.Search(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("search mailbox: %w", err)
	}

	report := NewSweepReport()

	for _, id := range ids {
		uc.processMessage(ctx, session, id, report)
	}

	return report, nil
}

func (uc *IngestUseCase) processMessage(ctx context.Context, session MailboxSession, id string, report *SweepReport) {
	msg, err := session.Fetch(ctx, id)
	if err != nil {
		uc.logger.Error().Err(err).Str("message_id", id).Msg("fetch failed")
		report.FetchErrors++
		return
	}

	report.Messages++

	if !uc.senderAllowed(msg.From) {
		uc.logger.Warn().
			Str("message_id", msg.MessageID).
			Str("from", msg.From).
			Err(domain.ErrSenderNotAllowed).
			Msg("message rejected")
		report.RejectedSenders++
		return
	}

	for i, block := range SplitBlocks(msg.Body) {
		uc.processBlock(ctx, msg, i, block, report)
	}
}

func (uc *IngestUseCase) processBlock(ctx context.Context, msg *MailMessage, index int, block blockSpan, report *SweepReport) {
	report.Blocks++

	fingerprint := Fingerprint(msg.MessageID, index)

	if uc.alreadySeen(ctx, fingerprint) {
		uc.logger.Debug().Str("fingerprint", fingerprint).Msg("fingerprint already seen, skipping block")
		report.Duplicates++
		return
	}

	variant, err := parser.DetectVariant(block.Text)
	if err != nil {
		uc.logParseError(msg, block, err)
		report.ParseFailures++
		return
	}

	fields, err := parser.Parse(block.Text, variant)
	if err != nil {
		uc.logParseError(msg, block, err)
		report.ParseFailures++
		return
	}

	movement, err := uc.reconciler.Reconcile(ctx, fields, fingerprint)
	if err != nil {
		uc.logger.Error().Err(err).
			Str("message_id", msg.MessageID).
			Str("fingerprint", fingerprint).
			Msg("reconciliation error")
		report.ReconcileErrors++
		return
	}

	uc.markSeen(ctx, fingerprint)
	report.Record(movement)
}

func (uc *IngestUseCase) senderAllowed(from string) bool {
	addr := strings.ToLower(strings.TrimSpace(from))
	for _, allowed := range uc.cfg.AllowedSenders {
		if addr == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// alreadySeen is a read-only lookup. The fingerprint is marked only in
// markSeen, after reconciliation persisted the movement, so a block that
// fails on a transient error is picked up again by the next sweep.
func (uc *IngestUseCase) alreadySeen(ctx context.Context, fingerprint string) bool {
	if uc.seen == nil {
		return false
	}

	seen, err := uc.seen.Seen(ctx, fingerprint)
	if err != nil {
		// The movement table's unique constraint still dedups; keep going.
		uc.logger.Warn().Err(err).Msg("seen-store unavailable, falling through to database dedup")
		return false
	}

	return seen
}

func (uc *IngestUseCase) markSeen(ctx context.Context, fingerprint string) {
	if uc.seen == nil {
		return
	}
	if err := uc.seen.Mark(ctx, fingerprint, uc.cfg.SeenTTL); err != nil {
		uc.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("seen-store mark failed")
	}
}

func (uc *IngestUseCase) logParseError(msg *MailMessage, block blockSpan, err error) {
	evt := uc.logger.Warn().Err(err).
		Str("message_id", msg.MessageID)

	var perr *parser.ParseError
	if errors.As(err, &perr) {
		// Line numbers are reported relative to the whole message body.
		evt = evt.
			Str("field", perr.Field).
			Int("line", block.Offset+perr.LineIndex).
			Str("raw_line", perr.RawLine)
	}

	evt.Msg("block skipped: parse failed")
}

// blockSpan is one notification block together with its starting line offset
// inside the original message body.
type blockSpan struct {
	Offset int
	Text   string
}

// SplitBlocks cuts a message body into per-transaction blocks. A block
// starts at every notification header line and runs until the next one.
func SplitBlocks(body string) []blockSpan {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	var blocks []blockSpan
	start := -1

	flush := func(end int) {
		if start >= 0 {
			blocks = append(blocks, blockSpan{
				Offset: start,
				Text:   strings.Join(lines[start:end], "\n"),
			})
		}
	}

	for i, line := range lines {
		if parser.IsHeader(line) {
			flush(i)
			start = i
		}
	}
	flush(len(lines))

	return blocks
}

// Fingerprint derives the dedup key for one block from the transport-level
// message identifier and the block's position, never from block content, so
// a re-fetched message maps to the same keys.
func Fingerprint(messageID string, blockIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", messageID, blockIndex)))
	return hex.EncodeToString(sum[:])
}
