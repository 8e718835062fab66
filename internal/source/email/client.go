package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/logging"
	"github.com/nhle/threadmail/internal/source"
)

// Defaults for the inbound account properties.
const (
	DefaultMailbox     = "INBOX"
	DefaultFetchedFlag = "fetched"
)

// IMAPClient wraps go-imap v2 for connecting to an IMAP account.
type IMAPClient struct {
	acc *account.Account
	log logrus.FieldLogger
}

// NewIMAPClient creates a new IMAP client for acc.
func NewIMAPClient(acc *account.Account) *IMAPClient {
	return &IMAPClient{acc: acc, log: logging.Log}
}

// WithLogger sets the logger handed to opened mailboxes.
func (c *IMAPClient) WithLogger(log logrus.FieldLogger) *IMAPClient {
	c.log = log
	return c
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(ctx context.Context) (*imapclient.Client, error) {
	addr := c.acc.Addr()

	conn, err := dial(ctx, c.acc)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	opts := &imapclient.Options{TLSConfig: tlsConfig(c.acc)}

	var client *imapclient.Client
	switch c.acc.Channel {
	case account.ChannelSSL:
		client = imapclient.New(tls.Client(conn, opts.TLSConfig), opts)
	case account.ChannelStartTLS:
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starting TLS with IMAP %s: %w", addr, err)
		}
	default:
		client = imapclient.New(conn, opts)
	}

	if err := client.Login(c.acc.User, c.acc.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, &source.AuthError{
			Protocol: source.ProtocolIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.acc.User, err,
			),
		}
	}

	return client, nil
}

// Open connects and selects the configured mailbox read-write, so fetching
// a body marks it \Seen.
func (c *IMAPClient) Open(ctx context.Context) (*Mailbox, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	name := c.acc.Property(account.PropMailbox, DefaultMailbox)
	if _, err := client.Select(name, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		_ = client.Close()
		return nil, fmt.Errorf("selecting %s: %w", name, err)
	}

	return &Mailbox{
		client:      client,
		name:        name,
		fetchedFlag: imap.Flag(c.acc.Property(account.PropFetchedFlag, DefaultFetchedFlag)),
		log:         c.log.WithField("mailbox", name),
	}, nil
}

// Mailbox is a selected IMAP folder.
type Mailbox struct {
	client      *imapclient.Client
	name        string
	fetchedFlag imap.Flag
	log         logrus.FieldLogger
}

// unprocessedCriteria matches messages neither seen nor marked fetched.
func unprocessedCriteria(fetchedFlag imap.Flag) *imap.SearchCriteria {
	return &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen, fetchedFlag},
	}
}

// Unprocessed lists the envelopes of messages that are neither \Seen nor
// carry the fetched keyword, in UID order.
func (m *Mailbox) Unprocessed(_ context.Context) ([]Envelope, error) {
	searchData, err := m.client.UIDSearch(unprocessedCriteria(m.fetchedFlag), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", m.name, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := m.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		if env, ok := collectEnvelope(m.log, msg, msg.SeqNum); ok {
			envelopes = append(envelopes, env)
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, fmt.Errorf("fetching envelopes: %w", err)
	}

	return envelopes, nil
}

// Fetch returns the raw RFC 5322 content of the message with uid. The body
// is fetched without PEEK, so the server sets \Seen.
func (m *Mailbox) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{}

	fetchCmd := m.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("closing fetch: %w", err)
	}

	return raw, nil
}

// MarkSkipped clears \Seen and sets the fetched keyword, so the message is
// neither listed again nor shown as read.
func (m *Mailbox) MarkSkipped(_ context.Context, uid uint32) error {
	uidSet := imap.UIDSetNum(imap.UID(uid))

	err := m.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsDel,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("clearing \\Seen on UID %d: %w", uid, err)
	}

	err = m.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{m.fetchedFlag},
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("setting %s on UID %d: %w", m.fetchedFlag, uid, err)
	}

	return nil
}

// Close logs out and closes the connection.
func (m *Mailbox) Close() error {
	_ = m.client.Logout().Wait()
	return m.client.Close()
}

type envelopeCollector interface {
	Collect() (*imapclient.FetchMessageBuffer, error)
}

// collectEnvelope drains one FETCH response. A response that fails to
// collect is logged and skipped; the message stays unprocessed on the
// server and is retried next cycle.
func collectEnvelope(log logrus.FieldLogger, msg envelopeCollector, seq uint32) (Envelope, bool) {
	buf, err := msg.Collect()
	if err != nil {
		fields := logrus.Fields{"seq": seq}
		if buf != nil && buf.UID != 0 {
			fields["uid"] = uint32(buf.UID)
		}
		log.WithFields(fields).WithError(err).Error("failed to collect message envelope")
		return Envelope{}, false
	}
	return envelopeFromBuffer(buf), true
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) Envelope {
	env := Envelope{
		UID: uint32(buf.UID),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}

		for _, to := range buf.Envelope.To {
			env.To = append(env.To, to.Addr())
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, string(flag))
	}

	return env
}

// dial opens the TCP connection for acc, honouring its connection timeout.
// Reads and writes on the returned conn time out after acc.Timeout.
func dial(ctx context.Context, acc *account.Account) (net.Conn, error) {
	d := net.Dialer{Timeout: acc.ConnectionTimeout}
	conn, err := d.DialContext(ctx, "tcp", acc.Addr())
	if err != nil {
		return nil, err
	}
	return &timeoutConn{Conn: conn, timeout: acc.Timeout}, nil
}

// tlsConfig builds the TLS settings for acc.
func tlsConfig(acc *account.Account) *tls.Config {
	return &tls.Config{
		ServerName:         acc.Host,
		InsecureSkipVerify: acc.BoolProperty(account.PropInsecureSkipVerify),
	}
}

// timeoutConn extends the deadline before every read and write.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(b)
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Write(b)
}
