// Package account resolves the outbound and inbound mail accounts from the
// process settings. Each account is resolved at most once per Resolver.
package account

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Channel is the transport security of a mail connection.
type Channel string

// Supported channels.
const (
	ChannelPlain    Channel = ""
	ChannelSSL      Channel = "ssl"
	ChannelStartTLS Channel = "starttls"
)

// DefaultTimeout applies to read and connect timeouts that are not set.
const DefaultTimeout = 60 * time.Second

// Well-known property keys honoured by the transports.
const (
	PropMailbox            = "mailbox"
	PropFetchedFlag        = "fetched_flag"
	PropInsecureSkipVerify = "insecure_skip_verify"
	PropLocalName          = "local_name"
)

// Account describes a mail server connection.
type Account struct {
	Host     string
	Port     int
	User     string
	Password string
	Channel  Channel

	// From is the envelope sender of outbound mail. Empty for inbound
	// accounts.
	From string

	Timeout           time.Duration
	ConnectionTimeout time.Duration

	// Properties holds free-form transport overrides keyed without their
	// settings prefix.
	Properties map[string]string
}

// Addr returns host:port.
func (a *Account) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Property returns the named override or def when unset.
func (a *Account) Property(key, def string) string {
	if v, ok := a.Properties[key]; ok && v != "" {
		return v
	}
	return def
}

// BoolProperty reports whether the named override parses as true.
func (a *Account) BoolProperty(key string) bool {
	b, _ := strconv.ParseBool(a.Property(key, "false"))
	return b
}

// parseChannel maps a settings value onto a Channel. Unknown values fall
// back to a plain connection.
func parseChannel(s string) Channel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ssl", "tls":
		return ChannelSSL
	case "starttls":
		return ChannelStartTLS
	default:
		return ChannelPlain
	}
}

// parseTimeout accepts either a bare number of milliseconds or a Go
// duration string.
func parseTimeout(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTimeout
	}
	if ms, err := strconv.Atoi(s); err == nil {
		if ms <= 0 {
			return DefaultTimeout
		}
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}
