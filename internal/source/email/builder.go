package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
)

// Builder composes an outbound HTML message.
type Builder struct {
	from        string
	to          []*mail.Address
	subject     string
	html        string
	headers     [][2]string
	attachments []attachmentSource
	now         func() time.Time
}

type attachmentSource struct {
	name     string
	mimeType string
	open     func() (io.ReadCloser, error)
}

// NewBuilder starts a message sent from the given address.
func NewBuilder(from string) *Builder {
	return &Builder{from: from, now: time.Now}
}

// To appends recipients.
func (b *Builder) To(addrs ...*mail.Address) *Builder {
	b.to = append(b.to, addrs...)
	return b
}

// Subject sets the subject line.
func (b *Builder) Subject(subject string) *Builder {
	b.subject = subject
	return b
}

// HTML sets the HTML body.
func (b *Builder) HTML(html string) *Builder {
	b.html = html
	return b
}

// Header sets an extra top-level header field.
func (b *Builder) Header(key, value string) *Builder {
	b.headers = append(b.headers, [2]string{key, value})
	return b
}

// Attach adds an attachment whose content is read from open at Build time.
// An empty mimeType is guessed from the file name.
func (b *Builder) Attach(name, mimeType string, open func() (io.ReadCloser, error)) *Builder {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	b.attachments = append(b.attachments, attachmentSource{name: name, mimeType: mimeType, open: open})
	return b
}

// Build encodes the message with the given correlation id as Message-ID.
func (b *Builder) Build(messageID string) (*Message, error) {
	from, err := mail.ParseAddress(b.from)
	if err != nil {
		return nil, fmt.Errorf("parsing sender %q: %w", b.from, err)
	}
	if len(b.to) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	var h mail.Header
	h.SetDate(b.now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", b.to)
	h.SetSubject(b.subject)
	h.SetMessageID(messageID)
	for _, kv := range b.headers {
		h.Set(kv[0], kv[1])
	}

	var buf bytes.Buffer
	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	var ih mail.InlineHeader
	ih.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	body, err := w.CreateSingleInline(ih)
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	if _, err := io.WriteString(body, b.html); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("closing body: %w", err)
	}

	for _, a := range b.attachments {
		if err := writeAttachment(w, a); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}

	to := make([]string, len(b.to))
	for i, addr := range b.to {
		to[i] = addr.Address
	}

	return &Message{
		ID:   messageID,
		From: from.Address,
		To:   to,
		Data: buf.Bytes(),
	}, nil
}

func writeAttachment(w *mail.Writer, a attachmentSource) error {
	src, err := a.open()
	if err != nil {
		return fmt.Errorf("opening attachment %s: %w", a.name, err)
	}
	defer src.Close()

	var ah mail.AttachmentHeader
	ah.SetContentType(a.mimeType, nil)
	ah.SetFilename(a.name)

	part, err := w.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment %s: %w", a.name, err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("writing attachment %s: %w", a.name, err)
	}
	if err := part.Close(); err != nil {
		return fmt.Errorf("closing attachment %s: %w", a.name, err)
	}
	return nil
}
