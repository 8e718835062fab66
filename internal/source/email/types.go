package email

import (
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Flags     []string // \Seen, \Flagged, \Answered, \Deleted
	UID       uint32
}

// ParsedMessage holds the full parsed content of an inbound email message.
type ParsedMessage struct {
	// MessageID is the correlation id without angle brackets.
	MessageID string
	Subject   string
	From      *mail.Address
	Date      time.Time

	TextBody string
	HTMLBody string

	// Header keeps the raw top-level header for reply-chain lookups.
	Header mail.Header

	Attachments []Attachment
}

// Body returns the HTML body when present, otherwise the plain text one.
func (p *ParsedMessage) Body() string {
	if p.HTMLBody != "" {
		return p.HTMLBody
	}
	return p.TextBody
}

// Summary returns a short plain-text digest of the body.
func (p *ParsedMessage) Summary() string {
	text := p.TextBody
	if text == "" {
		text = stripHTML(p.HTMLBody)
	}
	return truncate(text, summaryLength)
}

// Attachment holds a message attachment and its content.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
	Data     []byte
}

// Message is a composed outbound message ready for transmission.
type Message struct {
	// ID is the correlation id written to the Message-ID header.
	ID   string
	From string
	To   []string
	Data []byte
}
