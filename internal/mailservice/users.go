package mailservice

import (
	"context"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
)

// ResolveUser returns the first user whose email is address. It returns
// store.ErrNotFound when there is none.
func (s *Service) ResolveUser(ctx context.Context, address string) (*model.User, error) {
	address = model.NormalizeAddress(address)
	if address == "" {
		return nil, store.ErrNotFound
	}
	return s.store.FindUserByEmail(ctx, address)
}

// SearchAddresses lists users with an email whose email or name contains
// match, leaving out the excluded emails. A limit of zero or less means no
// limit.
func (s *Service) SearchAddresses(ctx context.Context, match string, excluded []string, limit int) ([]*mail.Address, error) {
	users, err := s.store.SearchUsers(ctx, store.UserFilter{
		Match:   match,
		Exclude: excluded,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*mail.Address, 0, len(users))
	for _, u := range users {
		out = append(out, &mail.Address{Name: u.Name, Address: u.Email})
	}
	return out, nil
}
