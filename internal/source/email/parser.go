package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/threadmail/internal/model"
)

// summaryLength caps ParsedMessage.Summary in runes.
const summaryLength = 255

// ParseError reports malformed inbound message content.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err (or any error in its chain) is a
// ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Parse reads a raw RFC 5322 message. Bodies in a known charset are decoded
// to UTF-8; parts in an unknown charset are kept undecoded.
func Parse(raw []byte) (*ParsedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, &ParseError{Err: err}
	}
	defer mr.Close()

	parsed := &ParsedMessage{Header: mr.Header}

	parsed.MessageID, err = mr.Header.MessageID()
	if err != nil {
		// Fall back to the raw value for ids the strict parser refuses.
		parsed.MessageID = model.NormalizeMessageID(mr.Header.Get("Message-Id"))
	}

	if parsed.Subject, err = mr.Header.Subject(); err != nil {
		parsed.Subject = mr.Header.Get("Subject")
	}

	from, err := mr.Header.AddressList("From")
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("from header: %w", err)}
	}
	if len(from) > 0 {
		parsed.From = from[0]
	}

	parsed.Date, _ = mr.Header.Date()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, &ParseError{Err: err}
		}

		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			return nil, &ParseError{Err: fmt.Errorf("reading part: %w", readErr)}
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if parsed.TextBody == "" {
					parsed.TextBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if parsed.HTMLBody == "" {
					parsed.HTMLBody = string(body)
				}
			default:
				// Inline images and the like are kept as attachments.
				_, params, _ := h.ContentDisposition()
				if name := params["filename"]; name != "" {
					parsed.Attachments = append(parsed.Attachments, Attachment{
						Filename: name,
						Size:     int64(len(body)),
						MIMEType: contentType,
						Data:     body,
					})
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			if filename == "" {
				filename = "attachment"
			}
			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename: filename,
				Size:     int64(len(body)),
				MIMEType: contentType,
				Data:     body,
			})
		}
	}

	return parsed, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes HTML tags from a string and decodes common
// HTML entities.
func stripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{
		"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>",
	} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, "")

	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	result = replacer.Replace(result)

	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(result)
}

// truncate shortens s to at most n runes, collapsing whitespace first.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
