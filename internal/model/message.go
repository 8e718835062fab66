package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageIDDomain is the right-hand side of generated correlation ids.
const MessageIDDomain = "threadmail"

// Message type constants.
const (
	MessageTypePlain        = "plain"
	MessageTypeNotification = "notification"
	MessageTypeEmail        = "email"
)

// Message is a single node of a conversation thread. A message without a
// parent is the root of its own thread.
type Message struct {
	// ID is the internal unique identifier for this message.
	ID string `json:"id" db:"id"`

	// Type is one of the MessageType* constants.
	Type string `json:"type" db:"type"`

	Subject string `json:"subject" db:"subject"`
	Body    string `json:"body" db:"body"`
	Summary string `json:"summary" db:"summary"`

	// MessageID is the correlation id exchanged in Message-ID,
	// In-Reply-To and References headers. Stored without angle brackets
	// and never changed once persisted.
	MessageID string `json:"message_id" db:"message_id"`

	// ParentID and RootID place the message in its thread. A non-nil
	// ParentID always comes with a non-nil RootID.
	ParentID *string `json:"parent_id,omitempty" db:"parent_id"`
	RootID   *string `json:"root_id,omitempty" db:"root_id"`

	// RelatedModel, RelatedID and RelatedName reference the record the
	// conversation is about.
	RelatedModel string `json:"related_model" db:"related_model"`
	RelatedID    string `json:"related_id" db:"related_id"`
	RelatedName  string `json:"related_name" db:"related_name"`

	// AuthorID references the local user who wrote the message, if any.
	AuthorID *string `json:"author_id,omitempty" db:"author_id"`

	// FromID references the origin address of an emailed message.
	FromID *string `json:"from_id,omitempty" db:"from_id"`

	// Recipients holds explicit recipient addresses. Populated by the
	// store on read and persisted on create.
	Recipients []Address `json:"recipients,omitempty" db:"-"`

	CreatedBy string     `json:"created_by" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// IsReply reports whether the message has a parent.
func (m *Message) IsReply() bool {
	return m.ParentID != nil && *m.ParentID != ""
}

// ThreadRootID returns the id of the thread root: the message's root if set,
// otherwise the message itself.
func (m *Message) ThreadRootID() string {
	if m.RootID != nil && *m.RootID != "" {
		return *m.RootID
	}
	return m.ID
}

// IsAuditPayload reports whether the body holds a structured audit
// tracking payload rather than free text.
func (m *Message) IsAuditPayload() bool {
	if m.Type != MessageTypeNotification {
		return false
	}
	body := strings.TrimSpace(m.Body)
	return strings.HasPrefix(body, "{")
}

// NormalizeMessageID strips whitespace and surrounding angle brackets
// from a correlation id.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// NewMessageID generates a fresh correlation id.
func NewMessageID() string {
	return uuid.New().String() + "@" + MessageIDDomain
}
