package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
	"github.com/nhle/threadmail/tests/testutil"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := store.Open("mysql", "")
	require.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	msg := &model.Message{Subject: "x"}
	require.NoError(t, s.CreateMessage(context.Background(), msg))
	_, err = s.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
}

func TestWithTx_ReadsDoNotWaitForOpenTransaction(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	existing := testutil.CreateMessage(t, s, &model.Message{Subject: "existing"})

	err := s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateMessage(ctx, &model.Message{Subject: "pending"}); err != nil {
			return err
		}

		done := make(chan error, 1)
		go func() {
			_, err := s.GetMessage(ctx, existing.ID)
			done <- err
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Error("read blocked behind an open write transaction")
			return nil
		}
	})
	require.NoError(t, err)
}

func TestFindOrCreateAddress(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	a, err := s.FindOrCreateAddress(ctx, " Jane@Example.com ", "")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", a.Address)

	b, err := s.FindOrCreateAddress(ctx, "jane@example.com", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Jane Doe", b.DisplayName)

	c, err := s.GetAddress(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.DisplayName)

	_, err = s.FindOrCreateAddress(ctx, "  ", "")
	require.Error(t, err)
}

func TestFindUserByEmail(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	u := testutil.CreateUser(t, s, "Jane", "Jane@Example.com")
	testutil.CreateUser(t, s, "Nobody", "")

	got, err := s.FindUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.FindUserByEmail(ctx, "other@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindUserByEmail(ctx, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.CreateUser(t, s, "Alice", "alice@x.com")
	testutil.CreateUser(t, s, "Bob", "bob@x.com")
	testutil.CreateUser(t, s, "Carol", "carol@y.com")
	testutil.CreateUser(t, s, "Dave", "")

	tests := []struct {
		name   string
		filter store.UserFilter
		want   []string
	}{
		{"all with email", store.UserFilter{}, []string{"Alice", "Bob", "Carol"}},
		{"match email", store.UserFilter{Match: "X.COM"}, []string{"Alice", "Bob"}},
		{"match name", store.UserFilter{Match: "car"}, []string{"Carol"}},
		{"exclude", store.UserFilter{Exclude: []string{"Bob@x.com"}}, []string{"Alice", "Carol"}},
		{"limit", store.UserFilter{Limit: 1}, []string{"Alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := s.SearchUsers(ctx, tt.filter)
			require.NoError(t, err)

			var names []string
			for _, u := range users {
				names = append(names, u.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFollowers(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	u := testutil.CreateUser(t, s, "Jane", "jane@x.com")
	addr, err := s.FindOrCreateAddress(ctx, "ext@y.com", "")
	require.NoError(t, err)

	byUser := &model.Follower{RelatedModel: "order", RelatedID: "1", UserID: &u.ID}
	byAddr := &model.Follower{RelatedModel: "order", RelatedID: "1", AddressID: &addr.ID}
	require.NoError(t, s.AddFollower(ctx, byUser))
	require.NoError(t, s.AddFollower(ctx, byAddr))
	require.NoError(t, s.ArchiveFollower(ctx, byAddr.ID))

	require.Error(t, s.AddFollower(ctx, &model.Follower{RelatedModel: "order", RelatedID: "1"}))
	require.ErrorIs(t, s.ArchiveFollower(ctx, "missing"), store.ErrNotFound)

	followers, err := s.GetFollowers(ctx, "order", "1")
	require.NoError(t, err)
	require.Len(t, followers, 2)

	assert.Equal(t, "jane@x.com", followers[0].Email())
	assert.False(t, followers[0].Archived)
	assert.Equal(t, "ext@y.com", followers[1].Email())
	assert.True(t, followers[1].Archived)

	none, err := s.GetFollowers(ctx, "order", "2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFilesAndAttachments(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := store.ContextWithActor(context.Background(), "mailer")

	msg := testutil.CreateMessage(t, s, &model.Message{})

	f := &model.File{FileName: "a.txt", FilePath: "ab/cd", FileType: "text/plain", FileSize: 3}
	require.NoError(t, s.CreateFile(ctx, f))
	assert.Equal(t, "mailer", f.CreatedBy)

	require.NoError(t, s.CreateAttachment(ctx, &model.Attachment{
		FileID: f.ID, ObjectModel: model.MessageModel, ObjectID: msg.ID,
	}))

	files, err := s.GetAttachedFiles(ctx, model.MessageModel, msg.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].FileName)

	got, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.FileSize)
}

func TestTeams(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	team := &model.Team{Name: "Support"}
	require.NoError(t, s.CreateTeam(ctx, team))

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Entity().Name)
	assert.True(t, got.Entity().Group)

	require.Error(t, s.CreateTeam(ctx, &model.Team{Name: " "}))
	_, err = s.GetTeam(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
