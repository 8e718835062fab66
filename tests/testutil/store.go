package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
)

// NewTestStore creates a SQLStore in a fresh database file under the
// test's temp dir, with all migrations applied. File databases run with a
// connection pool like production does. The store is closed when the test
// completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "threadmail.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// CreateMessage persists msg and fails the test on error.
func CreateMessage(t *testing.T, s store.Store, msg *model.Message) *model.Message {
	t.Helper()

	if err := s.CreateMessage(context.Background(), msg); err != nil {
		t.Fatalf("creating test message: %v", err)
	}
	return msg
}

// CreateUser persists a user with the given name and email.
func CreateUser(t *testing.T, s store.Store, name, email string) *model.User {
	t.Helper()

	u := &model.User{Name: name, Email: email}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}

// StrPtr returns a pointer to v.
func StrPtr(v string) *string {
	return &v
}
