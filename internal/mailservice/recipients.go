package mailservice

import (
	"context"
	"fmt"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
)

// recipients returns the explicit recipients of msg followed by the active
// followers of entity, de-duplicated by normalized address.
func recipients(ctx context.Context, q store.Store, msg *model.Message, entity *model.Entity) ([]*mail.Address, error) {
	var out []*mail.Address
	seen := make(map[string]bool)
	add := func(address, name string) {
		key := model.NormalizeAddress(address)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, &mail.Address{Name: name, Address: key})
	}

	for _, r := range msg.Recipients {
		add(r.Address, r.DisplayName)
	}

	if entity == nil {
		return out, nil
	}

	followers, err := q.GetFollowers(ctx, entity.Model, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("loading followers of %s %s: %w", entity.Model, entity.ID, err)
	}
	for _, f := range followers {
		if f.Archived {
			continue
		}
		add(f.Email(), "")
	}
	return out, nil
}
