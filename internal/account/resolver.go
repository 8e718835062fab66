package account

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/threadmail/internal/logging"
)

// Settings is the key/value view of the process configuration. A
// *viper.Viper satisfies it.
type Settings interface {
	GetString(key string) string
	AllKeys() []string
}

// SecretFunc looks up a password stored outside the settings.
type SecretFunc func(key string) (string, error)

// Option configures a Resolver.
type Option func(*Resolver)

// WithSecrets sets the lookup used for the mail.<proto>.keyring setting.
func WithSecrets(fn SecretFunc) Option {
	return func(r *Resolver) { r.secret = fn }
}

// WithLogger overrides the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Resolver) { r.log = log }
}

// Resolver memoizes the outbound (SMTP) and inbound (IMAP) accounts. Once
// resolved, an account never changes, including a nil "not configured"
// result.
type Resolver struct {
	settings Settings
	secret   SecretFunc
	log      logrus.FieldLogger

	mu       sync.Mutex
	outDone  bool
	outbound *Account
	inDone   bool
	inbound  *Account
}

// NewResolver creates a Resolver reading from settings.
func NewResolver(settings Settings, opts ...Option) *Resolver {
	r := &Resolver{
		settings: settings,
		log:      logging.Log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outbound returns the SMTP account, or nil when mail.smtp.host is blank.
func (r *Resolver) Outbound() *Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.outDone {
		r.outbound = r.resolve("smtp", 25, 465)
		if r.outbound != nil {
			r.outbound.From = strings.TrimSpace(r.settings.GetString("mail.smtp.from"))
			if r.outbound.From == "" {
				r.outbound.From = r.outbound.User
			}
		}
		r.outDone = true
	}
	return r.outbound
}

// Inbound returns the IMAP account, or nil when mail.imap.host is blank.
func (r *Resolver) Inbound() *Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inDone {
		r.inbound = r.resolve("imap", 143, 993)
		r.inDone = true
	}
	return r.inbound
}

func (r *Resolver) resolve(proto string, plainPort, sslPort int) *Account {
	prefix := "mail." + proto + "."

	host := strings.TrimSpace(r.settings.GetString(prefix + "host"))
	if host == "" {
		r.log.WithField("protocol", proto).Info("mail account not configured")
		return nil
	}

	acc := &Account{
		Host:              host,
		User:              strings.TrimSpace(r.settings.GetString(prefix + "user")),
		Password:          r.settings.GetString(prefix + "password"),
		Channel:           parseChannel(r.settings.GetString(prefix + "channel")),
		Timeout:           parseTimeout(r.settings.GetString(prefix + "timeout")),
		ConnectionTimeout: parseTimeout(r.settings.GetString(prefix + "connection_timeout")),
		Properties:        make(map[string]string),
	}

	acc.Port, _ = strconv.Atoi(strings.TrimSpace(r.settings.GetString(prefix + "port")))
	if acc.Port <= 0 {
		acc.Port = plainPort
		if acc.Channel == ChannelSSL {
			acc.Port = sslPort
		}
	}

	if acc.Password == "" && r.secret != nil {
		if key := r.settings.GetString(prefix + "keyring"); key != "" {
			pass, err := r.secret(key)
			if err != nil {
				r.log.WithError(err).WithField("protocol", proto).
					Warn("mail password lookup failed")
			}
			acc.Password = pass
		}
	}

	propPrefix := prefix + "properties."
	for _, key := range r.settings.AllKeys() {
		if strings.HasPrefix(key, propPrefix) {
			acc.Properties[strings.TrimPrefix(key, propPrefix)] = r.settings.GetString(key)
		}
	}

	return acc
}
