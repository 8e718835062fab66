package mailservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/logging"
	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/source/email"
	"github.com/nhle/threadmail/internal/store"
	"github.com/nhle/threadmail/internal/thread"
)

// Fetch runs one reconciliation cycle and returns the number of imported
// replies. Only one cycle runs at a time; concurrent callers wait and then
// run their own cycle. A disabled inbound account makes it a no-op.
//
// Local writes of a failed cycle are rolled back. Flag changes already made
// on the server are not.
func (s *Service) Fetch(ctx context.Context) (int, error) {
	var imported int
	err := s.guard.Do(func() error {
		n, err := s.cycle(ctx)
		imported = n
		return err
	})
	return imported, err
}

// cycleState tracks what a cycle did so a failure can be undone and
// reported.
type cycleState struct {
	imported int
	uploaded []*model.File

	uid       uint32
	messageID string
}

func (s *Service) cycle(ctx context.Context) (int, error) {
	acc := s.accounts.Inbound()
	if acc == nil {
		return 0, nil
	}

	mbox, err := s.openMailbox(ctx, acc)
	if err != nil {
		return 0, s.cycleFailed(&cycleState{}, err)
	}
	defer func() {
		if err := mbox.Close(); err != nil {
			s.log.WithError(err).Warn("closing mailbox")
		}
	}()

	envelopes, err := mbox.Unprocessed(ctx)
	if err != nil {
		return 0, s.cycleFailed(&cycleState{}, err)
	}

	state := &cycleState{}
	err = s.audit.Run(ctx, func(ctx context.Context, tx store.Store) error {
		for _, env := range envelopes {
			state.uid, state.messageID = env.UID, env.MessageID
			if err := s.reconcile(ctx, tx, mbox, env, state); err != nil {
				return err
			}
		}
		state.uid, state.messageID = 0, ""
		return nil
	})
	if err != nil {
		s.discardUploads(state)
		return 0, s.cycleFailed(state, err)
	}

	s.log.WithField("count", state.imported).Info("reconciliation cycle finished")
	return state.imported, nil
}

// reconcile handles one remote message.
func (s *Service) reconcile(
	ctx context.Context,
	tx store.Store,
	mbox Mailbox,
	env email.Envelope,
	state *cycleState,
) error {
	log := s.log.WithFields(logrus.Fields{
		"uid":        env.UID,
		"message_id": env.MessageID,
	})

	raw, err := mbox.Fetch(ctx, env.UID)
	if err != nil {
		return err
	}

	parsed, err := email.Parse(raw)
	if email.IsParseError(err) {
		log.WithError(err).Error("skipping malformed message")
		return nil
	}
	if err != nil {
		return err
	}
	if parsed.MessageID != "" {
		state.messageID = parsed.MessageID
		log = log.WithField("message_id", parsed.MessageID)
	}

	parent, err := thread.Resolve(ctx, tx, thread.CandidateIDs(&parsed.Header))
	if thread.IsNoMatch(err) {
		log.WithField("reason", err.Error()).Debug("skipping unmatched message")
		return mbox.MarkSkipped(ctx, env.UID)
	}
	if err != nil {
		return err
	}
	log = log.WithField("thread", parent.ThreadRootID())

	if parsed.MessageID != "" {
		exists, err := tx.MessageExists(ctx, parsed.MessageID)
		if err != nil {
			return err
		}
		if exists {
			log.Debug("message already imported")
			return nil
		}
	}

	node, err := s.importReply(ctx, tx, parent, parsed, state)
	if err != nil {
		return err
	}

	state.imported++
	if parsed.From != nil {
		log = log.WithField("from", logging.MaskEmail(parsed.From.Address))
	}
	log.WithField("id", node.ID).Info("imported reply")
	return nil
}

// importReply stores parsed as a reply to parent, with its attachments.
func (s *Service) importReply(
	ctx context.Context,
	tx store.Store,
	parent *model.Message,
	parsed *email.ParsedMessage,
	state *cycleState,
) (*model.Message, error) {
	root := parent.ThreadRootID()
	node := &model.Message{
		Type:         model.MessageTypeEmail,
		Subject:      parsed.Subject,
		Body:         parsed.Body(),
		Summary:      parsed.Summary(),
		MessageID:    parsed.MessageID,
		ParentID:     &parent.ID,
		RootID:       &root,
		RelatedModel: parent.RelatedModel,
		RelatedID:    parent.RelatedID,
		RelatedName:  parent.RelatedName,
	}

	if parsed.From != nil && parsed.From.Address != "" {
		addr, err := tx.FindOrCreateAddress(ctx, parsed.From.Address, parsed.From.Name)
		if err != nil {
			return nil, err
		}
		node.FromID = &addr.ID

		user, err := tx.FindUserByEmail(ctx, parsed.From.Address)
		switch {
		case err == nil:
			node.AuthorID = &user.ID
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	if err := tx.CreateMessage(ctx, node); err != nil {
		return nil, err
	}

	for _, a := range parsed.Attachments {
		f, err := s.files.Upload(ctx, tx, bytes.NewReader(a.Data), a.Filename, a.MIMEType)
		if err != nil {
			return nil, fmt.Errorf("uploading attachment %s: %w", a.Filename, err)
		}
		state.uploaded = append(state.uploaded, f)

		if _, err := s.files.Attach(ctx, tx, f, model.MessageModel, node.ID); err != nil {
			return nil, fmt.Errorf("attaching %s: %w", a.Filename, err)
		}
	}
	return node, nil
}

// discardUploads removes file content whose records were rolled back.
func (s *Service) discardUploads(state *cycleState) {
	for _, f := range state.uploaded {
		if err := s.files.Remove(f); err != nil {
			s.log.WithError(err).WithField("file", f.FilePath).Warn("removing orphaned upload")
		}
	}
}

func (s *Service) cycleFailed(state *cycleState, err error) error {
	rerr := &ReconciliationError{UID: state.uid, MessageID: state.messageID, Err: err}
	s.log.WithFields(logrus.Fields{
		"uid":        state.uid,
		"message_id": state.messageID,
	}).WithError(err).Error("reconciliation cycle failed")
	return rerr
}
