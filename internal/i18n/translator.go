// Package i18n translates fixed labels and resolves selection display
// values for notification templates.
package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator looks up translated strings for one language.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New builds a Translator for lang from key → translation pairs. Keys are
// matched case-insensitively, since config keys arrive lower-cased.
func New(lang string, messages map[string]string) (*Translator, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parsing language %q: %w", lang, err)
	}

	b := catalog.NewBuilder(catalog.Fallback(tag))
	for key, msg := range messages {
		if err := b.SetString(tag, strings.ToLower(key), msg); err != nil {
			return nil, fmt.Errorf("adding translation %q: %w", key, err)
		}
	}

	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}, nil
}

// Language returns the translator's language tag.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T returns the translation of key, or key itself when none exists.
func (t *Translator) T(key string) string {
	if t == nil || key == "" || strings.Contains(key, "%") {
		return key
	}
	lookup := strings.ToLower(key)
	if got := t.printer.Sprintf(lookup); got != lookup {
		return got
	}
	return key
}
