package mailservice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/source/email"
	"github.com/nhle/threadmail/internal/store"
	"github.com/nhle/threadmail/tests/testutil"
)

func addressFollower(t *testing.T, s store.Store, relatedModel, relatedID, address string, archived bool) {
	t.Helper()
	ctx := context.Background()

	addr, err := s.FindOrCreateAddress(ctx, address, "")
	require.NoError(t, err)
	require.NoError(t, s.AddFollower(ctx, &model.Follower{
		RelatedModel: relatedModel,
		RelatedID:    relatedID,
		AddressID:    &addr.ID,
		Archived:     archived,
	}))
}

func TestSend_NilMessage(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})

	assert.ErrorIs(t, f.svc.Send(context.Background(), nil), ErrNilMessage)
	assert.ErrorIs(t, f.svc.Post(context.Background(), nil), ErrNilMessage)
}

func TestSend_DisabledAccountIsNoop(t *testing.T) {
	f := newFixture(t, fakeAccounts{})
	msg := &model.Message{
		Subject:    "Hello",
		Recipients: []model.Address{{Address: "a@x.com"}},
	}

	require.NoError(t, f.svc.Send(context.Background(), msg))
	f.drain()

	assert.Empty(t, f.sender.messages())
	assert.Equal(t, int64(0), f.svc.Stats().Submitted)
}

func TestSend_NoRecipientsIsNoop(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	msg := testutil.CreateMessage(t, f.store, &model.Message{Subject: "Nobody listens"})

	require.NoError(t, f.svc.Send(context.Background(), msg))
	f.drain()

	assert.Empty(t, f.sender.messages())
	assert.Empty(t, f.errorEntries())
}

func TestSend_DeliversAndMarksSent(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	ctx := context.Background()

	addressFollower(t, f.store, "order", "o-1", "a@x.com", false)
	addressFollower(t, f.store, "order", "o-1", "gone@x.com", true)
	user := testutil.CreateUser(t, f.store, "Bob", "bob@x.com")
	require.NoError(t, f.store.AddFollower(ctx, &model.Follower{
		RelatedModel: "order", RelatedID: "o-1", UserID: &user.ID,
	}))

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Type:         model.MessageTypeNotification,
		Subject:      "Order #1",
		Body:         "<p>Shipped</p>",
		RelatedModel: "order",
		RelatedID:    "o-1",
		Recipients:   []model.Address{{Address: "A@x.com", DisplayName: "Alice"}},
	})

	require.NoError(t, f.svc.Send(ctx, msg))
	f.drain()

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, msg.MessageID, sent[0].ID)
	assert.Equal(t, "notify@example.com", sent[0].From)
	assert.Equal(t, []string{"a@x.com", "bob@x.com"}, sent[0].To)

	parsed, err := email.Parse(sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "Order #1", parsed.Subject)
	assert.Contains(t, parsed.HTMLBody, "Shipped")
	assert.Empty(t, parsed.Header.Get("References"))

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.SentAt)
}

func TestSend_ReplyCarriesReferencesAndAttachments(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	ctx := context.Background()

	root := testutil.CreateMessage(t, f.store, &model.Message{Subject: "Order #1"})
	mid := testutil.CreateMessage(t, f.store, &model.Message{ParentID: &root.ID})
	leaf := testutil.CreateMessage(t, f.store, &model.Message{
		ParentID:   &mid.ID,
		Body:       "see attached",
		Recipients: []model.Address{{Address: "a@x.com"}},
	})

	file, err := f.files.Upload(ctx, f.store, strings.NewReader("a,b\n"), "report.csv", "text/csv")
	require.NoError(t, err)
	_, err = f.files.Attach(ctx, f.store, file, model.MessageModel, leaf.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Send(ctx, leaf))
	f.drain()

	sent := f.sender.messages()
	require.Len(t, sent, 1)

	parsed, err := email.Parse(sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "Re: Order #1", parsed.Subject)
	assert.Equal(t, "<"+mid.MessageID+"> <"+root.MessageID+">", parsed.Header.Get("References"))
	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "report.csv", parsed.Attachments[0].Filename)
	assert.Equal(t, "a,b\n", string(parsed.Attachments[0].Data))
}

func TestSend_TransmissionFailureIsLoggedAndRolledBack(t *testing.T) {
	hookCalled := false
	f := newFixture(t, fakeAccounts{out: outAccount}, WithPostSendHook(
		func(ctx context.Context, tx store.Store, msg *model.Message, _ *email.Message) error {
			hookCalled = true
			return nil
		}))
	f.sender.err = errBoom

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Subject:    "Hi",
		Recipients: []model.Address{{Address: "a@x.com"}},
	})

	require.NoError(t, f.svc.Send(context.Background(), msg))
	f.drain()

	assert.False(t, hookCalled)
	assert.Equal(t, int64(1), f.svc.Stats().Failed)

	entries := f.errorEntries()
	require.Len(t, entries, 1)
	err, ok := entries[0].Data["error"].(error)
	require.True(t, ok)
	var terr *TransmissionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, msg.MessageID, terr.MessageID)
	assert.ErrorIs(t, err, errBoom)
}

func TestSend_PostSendHookFailureRollsBack(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount}, WithPostSendHook(
		func(ctx context.Context, tx store.Store, msg *model.Message, _ *email.Message) error {
			if err := tx.MarkMessageSent(ctx, msg.ID, msg.CreatedAt); err != nil {
				return err
			}
			return errBoom
		}))

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Subject:    "Hi",
		Recipients: []model.Address{{Address: "a@x.com"}},
	})

	require.NoError(t, f.svc.Send(context.Background(), msg))
	f.drain()

	stored, err := f.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.SentAt)
	assert.Len(t, f.errorEntries(), 1)
}

func TestSend_BuildFailureIsReturned(t *testing.T) {
	bad := *outAccount
	bad.From = "not an address"
	f := newFixture(t, fakeAccounts{out: &bad})

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Subject:    "Hi",
		Recipients: []model.Address{{Address: "a@x.com"}},
	})

	err := f.svc.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	f.drain()
	assert.Empty(t, f.sender.messages())
}

func TestSend_MalformedAuditPayloadIsBuildError(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Type:       model.MessageTypeNotification,
		Subject:    "Changed",
		Body:       `{"tracks":[{"name":"qty","value":`,
		Recipients: []model.Address{{Address: "a@x.com"}},
	})

	err := f.svc.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, IsBuildError(err))
	f.drain()
	assert.Empty(t, f.sender.messages())
}

func TestSend_MissingAttachmentIsBuildError(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	ctx := context.Background()

	msg := testutil.CreateMessage(t, f.store, &model.Message{
		Subject:    "Hi",
		Recipients: []model.Address{{Address: "a@x.com"}},
	})
	file, err := f.files.Upload(ctx, f.store, strings.NewReader("x"), "x.txt", "")
	require.NoError(t, err)
	_, err = f.files.Attach(ctx, f.store, file, model.MessageModel, msg.ID)
	require.NoError(t, err)
	require.NoError(t, f.files.Remove(file))

	err = f.svc.Send(ctx, msg)
	assert.True(t, IsBuildError(err))
}

func TestPost_PersistsThenSends(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	ctx := store.ContextWithActor(context.Background(), "alice")

	msg := &model.Message{
		Subject:    "Welcome",
		Body:       "hello",
		Recipients: []model.Address{{Address: "a@x.com"}},
	}
	require.NoError(t, f.svc.Post(ctx, msg))
	f.drain()

	require.NotEmpty(t, msg.ID)
	stored, err := f.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.CreatedBy)
	assert.NotNil(t, stored.SentAt)

	sent := f.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, msg.MessageID, sent[0].ID)
}

func TestSend_ConcurrentSubmissions(t *testing.T) {
	f := newFixture(t, fakeAccounts{out: outAccount})
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		msg := testutil.CreateMessage(t, f.store, &model.Message{
			Subject:    "Hi",
			Recipients: []model.Address{{Address: "a@x.com"}},
		})
		require.NoError(t, f.svc.Send(ctx, msg))
	}
	f.drain()

	assert.Len(t, f.sender.messages(), n)
	assert.Equal(t, int64(n), f.svc.Stats().Succeeded)
}

// blockingSender holds every delivery until release is closed.
type blockingSender struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, _ *email.Message) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return nil
}

func TestSend_SlowDeliveryDoesNotBlockCaller(t *testing.T) {
	sender := &blockingSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	f := newFixture(t, fakeAccounts{out: outAccount}, WithSenderFactory(
		func(*account.Account) Sender { return sender }))
	t.Cleanup(func() { close(sender.release) })
	ctx := context.Background()

	addressFollower(t, f.store, "order", "o-1", "a@x.com", false)
	root := testutil.CreateMessage(t, f.store, &model.Message{
		Subject: "Order #1", RelatedModel: "order", RelatedID: "o-1",
	})
	reply := testutil.CreateMessage(t, f.store, &model.Message{
		ParentID: &root.ID, RelatedModel: "order", RelatedID: "o-1",
	})

	require.NoError(t, f.svc.Send(ctx, root))
	select {
	case <-sender.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first delivery never started")
	}

	done := make(chan error, 1)
	go func() { done <- f.svc.Send(ctx, reply) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send waited for a delivery in progress")
	}
}

func TestRecipients(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	addressFollower(t, st, "order", "o-1", "a@x.com", false)
	addressFollower(t, st, "order", "o-1", "b@x.com", true)
	addressFollower(t, st, "order", "o-1", "c@x.com", false)
	user := testutil.CreateUser(t, st, "No Mail", "")
	require.NoError(t, st.AddFollower(ctx, &model.Follower{
		RelatedModel: "order", RelatedID: "o-1", UserID: &user.ID,
	}))

	msg := &model.Message{
		RelatedModel: "order",
		RelatedID:    "o-1",
		Recipients:   []model.Address{{Address: "z@x.com"}, {Address: "A@X.com"}},
	}
	entity, err := resolveEntity(ctx, st, msg)
	require.NoError(t, err)

	got, err := recipients(ctx, st, msg, entity)
	require.NoError(t, err)
	assert.Equal(t, []string{"z@x.com", "a@x.com", "c@x.com"}, addresses(got))
}

func TestSubject(t *testing.T) {
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	team := &model.Team{Name: "Support"}
	require.NoError(t, st.CreateTeam(ctx, team))

	root := testutil.CreateMessage(t, st, &model.Message{Subject: "Order #1"})
	mid := testutil.CreateMessage(t, st, &model.Message{ParentID: &root.ID})
	leaf := testutil.CreateMessage(t, st, &model.Message{ParentID: &mid.ID})
	replied := testutil.CreateMessage(t, st, &model.Message{Subject: "re: Order #1", ParentID: &root.ID})
	below := testutil.CreateMessage(t, st, &model.Message{ParentID: &replied.ID})
	teamRoot := testutil.CreateMessage(t, st, &model.Message{RelatedModel: model.TeamModel, RelatedID: team.ID})
	teamLeaf := testutil.CreateMessage(t, st, &model.Message{
		ParentID: &teamRoot.ID, RelatedModel: model.TeamModel, RelatedID: team.ID,
	})
	bare := testutil.CreateMessage(t, st, &model.Message{})
	named := testutil.CreateMessage(t, st, &model.Message{
		Subject: "Confirmed", RelatedModel: "order", RelatedID: "o-1", RelatedName: "SO-001",
	})
	namedReply := testutil.CreateMessage(t, st, &model.Message{
		ParentID: &named.ID, RelatedModel: "order", RelatedID: "o-1", RelatedName: "SO-001",
	})

	tests := []struct {
		name string
		msg  *model.Message
		want string
	}{
		{"own subject", root, "Order #1"},
		{"three levels deep", leaf, "Re: Order #1"},
		{"existing prefix", below, "re: Order #1"},
		{"team fallback", teamRoot, "Support"},
		{"team fallback in reply", teamLeaf, "Re: Support"},
		{"entity name", named, "SO-001 - Confirmed"},
		{"entity name in reply", namedReply, "Re: SO-001 - Confirmed"},
		{"nothing", bare, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, err := resolveEntity(ctx, st, tt.msg)
			require.NoError(t, err)
			got, err := subject(ctx, st, tt.msg, entity)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubject_StopsOnUnsavedCycle(t *testing.T) {
	st := testutil.NewTestStore(t)
	a := testutil.CreateMessage(t, st, &model.Message{})

	// An unsaved message claiming to be its own parent must not loop.
	msg := &model.Message{ID: a.ID, ParentID: &a.ID}
	got, err := subject(context.Background(), st, msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func addresses(list []*mail.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}
