package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/threadmail/internal/model"
)

// CreateMessage inserts a new message together with its recipients.
func (s *SQLStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return fmt.Errorf("creating message: message must not be nil")
	}
	if msg.Type == "" {
		msg.Type = model.MessageTypePlain
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.MessageID = model.NormalizeMessageID(msg.MessageID)
	if msg.MessageID == "" {
		msg.MessageID = model.NewMessageID()
	}

	msg.RootID = nil
	if msg.IsReply() {
		parent, err := s.GetMessage(ctx, *msg.ParentID)
		if err != nil {
			return fmt.Errorf("loading parent %s: %w", *msg.ParentID, err)
		}
		rootID := parent.ThreadRootID()
		if parent.ID == msg.ID || rootID == msg.ID {
			return fmt.Errorf("creating message %s: %w", msg.ID, ErrThreadCycle)
		}
		msg.RootID = &rootID
	} else {
		msg.ParentID = nil
	}

	if msg.CreatedBy == "" {
		msg.CreatedBy = ActorFromContext(ctx)
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, `
		INSERT INTO messages (
			id, type, subject, body, summary, message_id,
			parent_id, root_id, related_model, related_id, related_name,
			author_id, from_id, created_by, created_at, sent_at
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?
		)`,
		msg.ID, msg.Type, msg.Subject, msg.Body, msg.Summary, msg.MessageID,
		msg.ParentID, msg.RootID, msg.RelatedModel, msg.RelatedID, msg.RelatedName,
		msg.AuthorID, msg.FromID, msg.CreatedBy, msg.CreatedAt, msg.SentAt,
	)
	if err != nil {
		return fmt.Errorf("creating message %s: %w", msg.MessageID, err)
	}

	seen := make(map[string]bool, len(msg.Recipients))
	recipients := make([]model.Address, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		addr, err := s.FindOrCreateAddress(ctx, r.Address, r.DisplayName)
		if err != nil {
			return fmt.Errorf("resolving recipient of message %s: %w", msg.ID, err)
		}
		if seen[addr.ID] {
			continue
		}
		seen[addr.ID] = true

		_, err = s.exec(ctx,
			"INSERT INTO message_recipients (message_id, address_id, position) VALUES (?, ?, ?)",
			msg.ID, addr.ID, len(recipients),
		)
		if err != nil {
			return fmt.Errorf("adding recipient %s to message %s: %w", addr.Address, msg.ID, err)
		}
		recipients = append(recipients, *addr)
	}
	msg.Recipients = recipients

	return nil
}

// GetMessage retrieves a single message by its ID.
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	if err := s.get(ctx, &msg, "SELECT * FROM messages WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	if err := s.loadRecipients(ctx, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindMessageByMessageID retrieves the message holding a correlation id.
func (s *SQLStore) FindMessageByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	messageID = model.NormalizeMessageID(messageID)

	var msg model.Message
	err := s.get(ctx, &msg, "SELECT * FROM messages WHERE message_id = ?", messageID)
	if err != nil {
		return nil, fmt.Errorf("finding message %s: %w", messageID, err)
	}
	if err := s.loadRecipients(ctx, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindFirstMessageByMessageIDs returns the oldest message whose correlation
// id is in ids. Ties on creation time are broken by ID.
func (s *SQLStore) FindFirstMessageByMessageIDs(ctx context.Context, ids []string) (*model.Message, error) {
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = model.NormalizeMessageID(id); id != "" {
			normalized = append(normalized, id)
		}
	}
	if len(normalized) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := sqlx.In(`
		SELECT * FROM messages
		WHERE message_id IN (?)
		ORDER BY created_at, id
		LIMIT 1`, normalized)
	if err != nil {
		return nil, fmt.Errorf("building message lookup: %w", err)
	}

	var msg model.Message
	if err := s.get(ctx, &msg, query, args...); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding message by correlation ids: %w", err)
	}
	if err := s.loadRecipients(ctx, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageExists reports whether a message holds the given correlation id.
func (s *SQLStore) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := s.get(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE message_id = ?",
		model.NormalizeMessageID(messageID),
	)
	if err != nil {
		return false, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return count > 0, nil
}

// MarkMessageSent records the delivery time of a message.
func (s *SQLStore) MarkMessageSent(ctx context.Context, id string, at time.Time) error {
	result, err := s.exec(ctx, "UPDATE messages SET sent_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("marking message %s sent: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("marking message %s sent: %w", id, ErrNotFound)
	}
	return nil
}

// loadRecipients fills msg.Recipients in insertion order.
func (s *SQLStore) loadRecipients(ctx context.Context, msg *model.Message) error {
	var recipients []model.Address
	err := s.list(ctx, &recipients, `
		SELECT a.* FROM addresses a
		JOIN message_recipients mr ON mr.address_id = a.id
		WHERE mr.message_id = ?
		ORDER BY mr.position`, msg.ID)
	if err != nil {
		return fmt.Errorf("querying recipients for message %s: %w", msg.ID, err)
	}
	msg.Recipients = recipients
	return nil
}
