// Package mail implements the mailbox and email-dispatch collaborators over
// IMAP and SMTP.
package mail

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"github.com/iho/paywatch/internal/usecase"
)

// IMAPConfig holds mailbox connection settings.
type IMAPConfig struct {
	Address  string // host:port, TLS
	Username string
	Password string
	Folder   string
}

// IMAPMailbox implements usecase.Mailbox.
type IMAPMailbox struct {
	cfg    IMAPConfig
	logger zerolog.Logger
}

// NewIMAPMailbox creates a new IMAPMailbox.
func NewIMAPMailbox(cfg IMAPConfig, logger zerolog.Logger) *IMAPMailbox {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPMailbox{cfg: cfg, logger: logger}
}

// Connect dials the IMAP server, logs in and selects the notification
// folder. Transient dial failures are retried briefly; authentication
// failures are not.
func (m *IMAPMailbox) Connect(ctx context.Context) (usecase.MailboxSession, error) {
	var c *client.Client

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		var dialErr error
		c, dialErr = client.DialTLS(m.cfg.Address, nil)
		if dialErr != nil {
			m.logger.Warn().Err(dialErr).Str("address", m.cfg.Address).Msg("imap dial failed, retrying")
		}
		return dialErr
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.Address, err)
	}

	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	if _, err := c.Select(m.cfg.Folder, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", m.cfg.Folder, err)
	}

	return &imapSession{client: c}, nil
}

type imapSession struct {
	client *client.Client
}

// Search returns the sequence numbers of messages received since the given
// date, as opaque string ids.
func (s *imapSession) Search(ctx context.Context, since time.Time) ([]string, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	seqNums, err := s.client.Search(criteria)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seqNums))
	for _, n := range seqNums {
		ids = append(ids, strconv.FormatUint(uint64(n), 10))
	}

	return ids, nil
}

// Fetch retrieves the envelope and plain-text body of one message.
func (s *imapSession) Fetch(ctx context.Context, id string) (*usecase.MailMessage, error) {
	seqNum, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(seqNum))

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.TextSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	if err := s.client.Fetch(seqSet, items, ch); err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}

	msg := <-ch
	if msg == nil {
		return nil, fmt.Errorf("message %s not returned by server", id)
	}
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil, fmt.Errorf("message %s has no envelope", id)
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, fmt.Errorf("message %s has no text body", id)
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("read message %s body: %w", id, err)
	}

	return &usecase.MailMessage{
		MessageID: msg.Envelope.MessageId,
		From:      msg.Envelope.From[0].Address(),
		Body:      string(body),
	}, nil
}

// Close logs the session out. Safe to call on every exit path.
func (s *imapSession) Close() error {
	return s.client.Logout()
}
