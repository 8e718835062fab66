package mailservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/files"
	"github.com/nhle/threadmail/internal/source/email"
	"github.com/nhle/threadmail/internal/store"
	"github.com/nhle/threadmail/tests/testutil"
)

type fakeAccounts struct {
	out, in *account.Account
}

func (f fakeAccounts) Outbound() *account.Account { return f.out }
func (f fakeAccounts) Inbound() *account.Account  { return f.in }

type fakeSender struct {
	mu   gosync.Mutex
	sent []*email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []*email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*email.Message(nil), f.sent...)
}

// remoteMessage is a message held by fakeMailbox with its two flags.
type remoteMessage struct {
	raw     []byte
	seen    bool
	fetched bool
}

// fakeMailbox mimics a read-write IMAP folder: fetching a body sets
// \Seen, skipping clears it and sets the fetched keyword.
type fakeMailbox struct {
	mu       gosync.Mutex
	messages map[uint32]*remoteMessage
	nextUID  uint32
	fetchErr map[uint32]error
	opens    int
	closes   int
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[uint32]*remoteMessage),
		fetchErr: make(map[uint32]error),
	}
}

func (m *fakeMailbox) deliver(raw string) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUID++
	m.messages[m.nextUID] = &remoteMessage{raw: []byte(raw)}
	return m.nextUID
}

func (m *fakeMailbox) flags(uid uint32) (seen, fetched bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.messages[uid]
	return msg.seen, msg.fetched
}

func (m *fakeMailbox) Unprocessed(context.Context) ([]email.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var envs []email.Envelope
	for uid, msg := range m.messages {
		if !msg.seen && !msg.fetched {
			envs = append(envs, email.Envelope{UID: uid})
		}
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].UID < envs[j].UID })
	return envs, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[uid]; err != nil {
		return nil, err
	}
	msg, ok := m.messages[uid]
	if !ok {
		return nil, fmt.Errorf("no message %d", uid)
	}
	msg.seen = true
	return msg.raw, nil
}

func (m *fakeMailbox) MarkSkipped(_ context.Context, uid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[uid]
	if !ok {
		return fmt.Errorf("no message %d", uid)
	}
	msg.seen = false
	msg.fetched = true
	return nil
}

func (m *fakeMailbox) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

type fixture struct {
	store   *store.SQLStore
	svc     *Service
	sender  *fakeSender
	mailbox *fakeMailbox
	fs      afero.Fs
	files   *files.Manager
	hook    *test.Hook
}

var (
	outAccount = &account.Account{Host: "smtp.example.com", Port: 25, From: "notify@example.com"}
	inAccount  = &account.Account{Host: "imap.example.com", Port: 143, User: "notify"}
)

func newFixture(t *testing.T, accounts Accounts, opts ...Option) *fixture {
	t.Helper()

	st := testutil.NewTestStore(t)
	fs := afero.NewMemMapFs()
	fm, err := files.NewManager(fs, "/files")
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		store:   st,
		sender:  &fakeSender{},
		mailbox: newFakeMailbox(),
		fs:      fs,
		files:   fm,
		hook:    hook,
	}

	base := []Option{
		WithLogger(logger),
		WithSenderFactory(func(*account.Account) Sender { return f.sender }),
		WithMailboxOpener(func(context.Context, *account.Account) (Mailbox, error) {
			f.mailbox.mu.Lock()
			f.mailbox.opens++
			f.mailbox.mu.Unlock()
			return f.mailbox, nil
		}),
		WithWorkers(2, 8),
	}
	f.svc = New(st, accounts, fm, append(base, opts...)...)
	t.Cleanup(f.svc.Close)
	return f
}

// drain waits for every queued send.
func (f *fixture) drain() {
	f.svc.Close()
}

func (f *fixture) errorEntries() []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			out = append(out, e)
		}
	}
	return out
}

var errBoom = errors.New("boom")
