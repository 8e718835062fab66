package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/threadmail/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrThreadCycle is returned when a message would become its own ancestor.
var ErrThreadCycle = errors.New("message would create a thread cycle")

// UserFilter controls the address-book style user search.
type UserFilter struct {
	Match   string   // case-insensitive substring of email or name
	Exclude []string // emails to leave out
	Limit   int
}

// Store defines the persistence interface for conversation messages and
// the records they reference.
type Store interface {
	// === Messages ===

	// CreateMessage persists a new message. It fills in the ID and
	// correlation id when empty, derives the root from the parent and
	// rejects parents that do not exist.
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	FindMessageByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	// FindFirstMessageByMessageIDs returns the earliest created message
	// whose correlation id is one of ids.
	FindFirstMessageByMessageIDs(ctx context.Context, ids []string) (*model.Message, error)
	MessageExists(ctx context.Context, messageID string) (bool, error)
	MarkMessageSent(ctx context.Context, id string, at time.Time) error

	// === Addresses ===

	FindOrCreateAddress(ctx context.Context, address, displayName string) (*model.Address, error)
	GetAddress(ctx context.Context, id string) (*model.Address, error)

	// === Users ===

	CreateUser(ctx context.Context, user *model.User) error
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	SearchUsers(ctx context.Context, filter UserFilter) ([]model.User, error)

	// === Followers ===

	AddFollower(ctx context.Context, f *model.Follower) error
	ArchiveFollower(ctx context.Context, id string) error
	GetFollowers(ctx context.Context, relatedModel, relatedID string) ([]model.Follower, error)

	// === Teams ===

	CreateTeam(ctx context.Context, team *model.Team) error
	GetTeam(ctx context.Context, id string) (*model.Team, error)

	// === Files ===

	CreateFile(ctx context.Context, f *model.File) error
	GetFile(ctx context.Context, id string) (*model.File, error)
	CreateAttachment(ctx context.Context, a *model.Attachment) error
	GetAttachedFiles(ctx context.Context, objectModel, objectID string) ([]model.File, error)

	// === Transactions ===

	// WithTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Calling WithTx on a store already bound to a transaction reuses it.
	WithTx(ctx context.Context, fn func(Store) error) error
}

type actorKey struct{}

// ContextWithActor returns a context whose writes are stamped with actor.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by ContextWithActor, or "".
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
