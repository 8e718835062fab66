package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartReply = "From: Jane Doe <Jane@Example.com>\r\n" +
	"To: support@example.com\r\n" +
	"Subject: Re: Order #1\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"Message-ID: <reply-1@example.com>\r\n" +
	"In-Reply-To: <root@threadmail>\r\n" +
	"References: <root@threadmail> <child@threadmail>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=OUTER\r\n" +
	"\r\n" +
	"--OUTER\r\n" +
	"Content-Type: multipart/alternative; boundary=INNER\r\n" +
	"\r\n" +
	"--INNER\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Thanks, it works.\r\n" +
	"--INNER\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Thanks, <b>it works</b>.</p>\r\n" +
	"--INNER--\r\n" +
	"--OUTER\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"report.csv\"\r\n" +
	"\r\n" +
	"a,b\r\n" +
	"--OUTER--\r\n"

func TestParse_Multipart(t *testing.T) {
	parsed, err := Parse([]byte(multipartReply))
	require.NoError(t, err)

	assert.Equal(t, "reply-1@example.com", parsed.MessageID)
	assert.Equal(t, "Re: Order #1", parsed.Subject)
	require.NotNil(t, parsed.From)
	assert.Equal(t, "Jane Doe", parsed.From.Name)
	assert.Equal(t, "Jane@Example.com", parsed.From.Address)
	assert.Equal(t, 2006, parsed.Date.Year())

	assert.Contains(t, parsed.TextBody, "Thanks, it works.")
	assert.Contains(t, parsed.HTMLBody, "<b>it works</b>")
	assert.Equal(t, parsed.HTMLBody, parsed.Body())
	assert.Equal(t, "Thanks, it works.", parsed.Summary())

	assert.Equal(t, "<root@threadmail> <child@threadmail>", parsed.Header.Get("References"))

	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "report.csv", parsed.Attachments[0].Filename)
	assert.Equal(t, "text/csv", parsed.Attachments[0].MIMEType)
	assert.Equal(t, "a,b", strings.TrimSpace(string(parsed.Attachments[0].Data)))
}

func TestParse_PlainTextOnly(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: hello\r\n" +
		"Message-ID: <p@x>\r\n" +
		"Content-Type: text/plain; charset=iso-8859-1\r\n" +
		"\r\n" +
		"caf\xe9\r\n"

	parsed, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "café\r\n", parsed.TextBody)
	assert.Empty(t, parsed.HTMLBody)
	assert.Equal(t, parsed.TextBody, parsed.Body())
	assert.Empty(t, parsed.Attachments)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad from", "From: <<<\r\nSubject: x\r\n\r\nbody\r\n"},
		{"broken header", "this is not a header\r\n\r\nbody"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "a & b\nc", stripHTML("<p>a &amp; b</p><div>c</div>"))
	assert.Empty(t, stripHTML(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate(" a \n b ", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
}
