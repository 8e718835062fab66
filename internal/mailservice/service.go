// Package mailservice dispatches notification mail for conversation
// messages and imports the replies that come back.
package mailservice

import (
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/audit"
	"github.com/nhle/threadmail/internal/files"
	"github.com/nhle/threadmail/internal/i18n"
	"github.com/nhle/threadmail/internal/logging"
	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/source/email"
	"github.com/nhle/threadmail/internal/store"
	mailsync "github.com/nhle/threadmail/internal/sync"
)

// DefaultActor attributes records written by background work.
const DefaultActor = "mailer"

// Accounts resolves the mail accounts. A nil account disables the
// corresponding direction.
type Accounts interface {
	Outbound() *account.Account
	Inbound() *account.Account
}

// Sender transmits a composed message.
type Sender interface {
	Send(ctx context.Context, msg *email.Message) error
}

// Mailbox is an opened inbound folder.
type Mailbox interface {
	Unprocessed(ctx context.Context) ([]email.Envelope, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkSkipped(ctx context.Context, uid uint32) error
	Close() error
}

// SenderFactory creates a Sender for an outbound account.
type SenderFactory func(acc *account.Account) Sender

// MailboxOpener connects to an inbound account.
type MailboxOpener func(ctx context.Context, acc *account.Account) (Mailbox, error)

// PostSendHook runs inside the send job's transaction once the message
// went out. Returning an error rolls the transaction back.
type PostSendHook func(ctx context.Context, tx store.Store, msg *model.Message, sent *email.Message) error

// Service is the mail engine.
type Service struct {
	store    store.Store
	accounts Accounts
	files    *files.Manager
	audit    *audit.Runner
	guard    *mailsync.Guard
	pool     *mailsync.Pool

	newSender   SenderFactory
	openMailbox MailboxOpener
	postSend    PostSendHook

	templates  *template.Template
	translator *i18n.Translator
	selections i18n.Selections
	log        logrus.FieldLogger

	actor     string
	workers   int
	queueSize int
}

// Option configures a Service.
type Option func(*Service)

// WithSenderFactory replaces the SMTP sender.
func WithSenderFactory(fn SenderFactory) Option {
	return func(s *Service) { s.newSender = fn }
}

// WithMailboxOpener replaces the IMAP mailbox.
func WithMailboxOpener(fn MailboxOpener) Option {
	return func(s *Service) { s.openMailbox = fn }
}

// WithPostSendHook replaces the hook run after each successful send. A
// nil hook disables it.
func WithPostSendHook(fn PostSendHook) Option {
	return func(s *Service) { s.postSend = fn }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithTemplate replaces the audit diff template. It is executed with an
// auditView.
func WithTemplate(t *template.Template) Option {
	return func(s *Service) { s.templates = t }
}

// WithTranslator sets the translator for fixed labels.
func WithTranslator(t *i18n.Translator) Option {
	return func(s *Service) { s.translator = t }
}

// WithSelections sets the option labels of enumerated fields.
func WithSelections(sel i18n.Selections) Option {
	return func(s *Service) { s.selections = sel }
}

// WithActor sets the actor stamped on records written by background work.
func WithActor(actor string) Option {
	return func(s *Service) { s.actor = actor }
}

// WithWorkers sizes the send pool.
func WithWorkers(workers, queueSize int) Option {
	return func(s *Service) {
		s.workers = workers
		s.queueSize = queueSize
	}
}

// New creates a Service and starts its send workers. Close stops them.
func New(st store.Store, accounts Accounts, fm *files.Manager, opts ...Option) *Service {
	s := &Service{
		store:     st,
		accounts:  accounts,
		files:     fm,
		guard:     mailsync.NewGuard(),
		newSender: defaultSender,
		postSend:  markSent,
		templates: defaultTemplate,
		log:       logging.Log,
		actor:     DefaultActor,
		workers:   4,
		queueSize: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.openMailbox == nil {
		s.openMailbox = s.defaultMailbox
	}

	s.audit = audit.NewRunner(st, s.actor)
	s.pool = mailsync.NewPool(s.workers, s.queueSize, s.logResult)
	return s
}

// Close waits for queued sends to finish and stops the workers.
func (s *Service) Close() {
	s.pool.Close()
}

// Stats returns the send pool counters.
func (s *Service) Stats() mailsync.Stats {
	return s.pool.Stats()
}

func (s *Service) logResult(r mailsync.Result) {
	entry := s.log.WithFields(logrus.Fields{
		"job":      r.Job,
		"duration": r.Duration.String(),
	})
	if r.Err != nil {
		entry.WithError(r.Err).Error("mail send failed")
		return
	}
	entry.Debug("mail sent")
}

func defaultSender(acc *account.Account) Sender {
	return email.NewSMTPSender(acc)
}

func (s *Service) defaultMailbox(ctx context.Context, acc *account.Account) (Mailbox, error) {
	mbox, err := email.NewIMAPClient(acc).WithLogger(s.log).Open(ctx)
	if err != nil {
		return nil, err
	}
	return mbox, nil
}

// resolveEntity returns the record msg is about, or nil when it has none.
func resolveEntity(ctx context.Context, q store.Store, msg *model.Message) (*model.Entity, error) {
	if msg.RelatedModel == "" || msg.RelatedID == "" {
		return nil, nil
	}
	if msg.RelatedModel == model.TeamModel {
		team, err := q.GetTeam(ctx, msg.RelatedID)
		if err == nil {
			return team.Entity(), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading team %s: %w", msg.RelatedID, err)
		}
	}
	return &model.Entity{Model: msg.RelatedModel, ID: msg.RelatedID, Name: msg.RelatedName}, nil
}
