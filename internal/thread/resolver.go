// Package thread matches inbound mail to the conversation it replies to.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
)

// Header fields carrying the reply chain.
const (
	HeaderInReplyTo   = "In-Reply-To"
	HeaderXReferences = "X-References"
	HeaderReferences  = "References"
)

var (
	// ErrNotAReply means the message carries no reply-chain identifiers.
	ErrNotAReply = errors.New("not a reply")

	// ErrOrphan means none of the identifiers matches a stored message.
	ErrOrphan = errors.New("orphan reply")
)

// Header gives access to raw header values. A go-message mail.Header
// satisfies it.
type Header interface {
	Get(key string) string
}

// CandidateIDs returns the de-duplicated correlation ids named by the
// In-Reply-To, X-References and References fields, without angle brackets,
// in first-seen order.
func CandidateIDs(h Header) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(raw string) {
		id := model.NormalizeMessageID(raw)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	if fields := strings.Fields(h.Get(HeaderInReplyTo)); len(fields) > 0 {
		add(fields[0])
	}
	for _, key := range []string{HeaderXReferences, HeaderReferences} {
		for _, f := range strings.Fields(h.Get(key)) {
			add(f)
		}
	}
	return ids
}

// Finder is the lookup the resolver needs from the store.
type Finder interface {
	FindFirstMessageByMessageIDs(ctx context.Context, ids []string) (*model.Message, error)
}

// Resolve finds the stored message the given candidate ids reply to. When
// more than one message matches, the earliest created one wins. It returns
// ErrNotAReply for an empty set and ErrOrphan when nothing matches.
func Resolve(ctx context.Context, f Finder, ids []string) (*model.Message, error) {
	if len(ids) == 0 {
		return nil, ErrNotAReply
	}

	parent, err := f.FindFirstMessageByMessageIDs(ctx, ids)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrphan
	}
	if err != nil {
		return nil, fmt.Errorf("resolving thread: %w", err)
	}
	return parent, nil
}

// IsNoMatch reports whether err is one of the resolver's not-found
// outcomes.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNotAReply) || errors.Is(err, ErrOrphan)
}
