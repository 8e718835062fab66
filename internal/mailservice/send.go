package mailservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/source/email"
	"github.com/nhle/threadmail/internal/store"
	mailsync "github.com/nhle/threadmail/internal/sync"
)

// Post persists msg and sends it. The message is stored even when mail is
// disabled or nobody would receive it.
func (s *Service) Post(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	err := s.audit.Run(ctx, func(ctx context.Context, tx store.Store) error {
		return tx.CreateMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("posting message: %w", err)
	}
	return s.Send(ctx, msg)
}

// Send composes the notification mail for msg and queues it for delivery.
// It returns once the message is built; delivery failures are logged by
// the send workers. Send is a no-op when no outbound account is configured
// or the message has no recipients.
func (s *Service) Send(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	acc := s.accounts.Outbound()
	if acc == nil {
		return nil
	}

	out, err := s.compose(ctx, acc, msg)
	if err != nil {
		return &BuildError{MessageID: msg.MessageID, Err: err}
	}
	if out == nil {
		s.log.WithField("message_id", msg.MessageID).Debug("no recipients; not sending")
		return nil
	}

	actor := store.ActorFromContext(ctx)
	job := mailsync.Job{
		Name: "send " + out.ID,
		Run: func(jobCtx context.Context) error {
			if actor != "" {
				jobCtx = store.ContextWithActor(jobCtx, actor)
			}
			return s.transmit(jobCtx, acc, msg, out)
		},
	}
	if err := s.pool.Submit(ctx, job); err != nil {
		return fmt.Errorf("queueing message %s: %w", out.ID, err)
	}
	return nil
}

// compose builds the outbound message for msg, or returns nil when it has
// no recipients.
func (s *Service) compose(ctx context.Context, acc *account.Account, msg *model.Message) (*email.Message, error) {
	entity, err := resolveEntity(ctx, s.store, msg)
	if err != nil {
		return nil, err
	}

	to, err := recipients(ctx, s.store, msg, entity)
	if err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, nil
	}

	subj, err := subject(ctx, s.store, msg, entity)
	if err != nil {
		return nil, err
	}

	body, err := s.htmlBody(msg)
	if err != nil {
		return nil, err
	}

	b := email.NewBuilder(acc.From).To(to...).Subject(subj).HTML(body)

	refs, err := references(ctx, s.store, msg)
	if err != nil {
		return nil, err
	}
	if refs != "" {
		b.Header(referencesHeader, refs)
	}

	if msg.ID != "" && s.files != nil {
		attached, err := s.files.AttachedFiles(ctx, s.store, model.MessageModel, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("loading attachments: %w", err)
		}
		for i := range attached {
			f := &attached[i]
			b.Attach(f.FileName, f.FileType, func() (io.ReadCloser, error) {
				return s.files.Open(f)
			})
		}
	}

	id := msg.MessageID
	if id == "" {
		id = model.NewMessageID()
	}
	return b.Build(id)
}

const referencesHeader = "References"

// references joins the correlation ids of the parent and root of msg.
func references(ctx context.Context, q store.Store, msg *model.Message) (string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, ref := range []*string{msg.ParentID, msg.RootID} {
		if ref == nil || *ref == "" || seen[*ref] {
			continue
		}
		seen[*ref] = true

		m, err := q.GetMessage(ctx, *ref)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("loading referenced message %s: %w", *ref, err)
		}
		ids = append(ids, "<"+m.MessageID+">")
	}
	return strings.Join(ids, " "), nil
}

// transmit sends out and runs the post-send hook in one transaction.
func (s *Service) transmit(ctx context.Context, acc *account.Account, msg *model.Message, out *email.Message) error {
	err := s.audit.Run(ctx, func(ctx context.Context, tx store.Store) error {
		if err := s.newSender(acc).Send(ctx, out); err != nil {
			return err
		}
		if s.postSend == nil {
			return nil
		}
		return s.postSend(ctx, tx, msg, out)
	})
	if err != nil {
		return &TransmissionError{MessageID: out.ID, Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"message_id": out.ID,
		"count":      len(out.To),
	}).Info("mail delivered")
	return nil
}

// markSent records the delivery time of stored messages.
func markSent(ctx context.Context, tx store.Store, msg *model.Message, _ *email.Message) error {
	if msg.ID == "" {
		return nil
	}
	return tx.MarkMessageSent(ctx, msg.ID, time.Now().UTC())
}
