package mailservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
)

// maxThreadDepth bounds the walk up a thread.
const maxThreadDepth = 64

const replyPrefix = "Re: "

// subject derives the subject line of msg. A message without a subject
// borrows the nearest ancestor's. A found subject is prefixed with the
// entity name ("SO-001 - Confirmed"). Group entities lend their name when
// no subject exists anywhere in the thread. "Re: " goes in front once
// the walk passed through a reply.
func subject(ctx context.Context, q store.Store, msg *model.Message, entity *model.Entity) (string, error) {
	found, reply, err := nearestSubject(ctx, q, msg)
	if err != nil {
		return "", err
	}

	switch {
	case found != "":
		if reply && hasReplyPrefix(found) {
			reply = false
		}
		if entity != nil && entity.Name != "" {
			found = entity.Name + " - " + found
		}
	case entity != nil && entity.Group:
		found = entity.Name
	}

	if found == "" {
		return "", nil
	}
	if reply && !hasReplyPrefix(found) {
		found = replyPrefix + found
	}
	return found, nil
}

// nearestSubject walks from msg towards the thread root and returns the
// first subject found, and whether a reply was passed on the way. Without
// a subject it still reports whether msg is a reply.
func nearestSubject(ctx context.Context, q store.Store, msg *model.Message) (string, bool, error) {
	reply := false
	visited := make(map[string]bool)

	cur := msg
	for depth := 0; cur != nil && depth < maxThreadDepth; depth++ {
		if s := strings.TrimSpace(cur.Subject); s != "" {
			return s, reply, nil
		}
		if cur.ID != "" {
			visited[cur.ID] = true
		}

		next := ""
		switch {
		case cur.IsReply():
			reply = true
			next = *cur.ParentID
		case cur.RootID != nil && *cur.RootID != "":
			next = *cur.RootID
		}
		if next == "" || visited[next] {
			break
		}

		parent, err := q.GetMessage(ctx, next)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("loading ancestor %s: %w", next, err)
		}
		cur = parent
	}
	return "", reply, nil
}

func hasReplyPrefix(s string) bool {
	return len(s) >= 3 && strings.EqualFold(s[:3], "re:")
}
