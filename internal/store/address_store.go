package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/threadmail/internal/model"
)

// FindOrCreateAddress returns the address row for address, creating it when
// missing. A non-empty displayName fills in a blank stored one.
func (s *SQLStore) FindOrCreateAddress(
	ctx context.Context,
	address, displayName string,
) (*model.Address, error) {
	normalized := model.NormalizeAddress(address)
	if normalized == "" {
		return nil, fmt.Errorf("address must not be empty")
	}
	displayName = strings.TrimSpace(displayName)

	var existing model.Address
	err := s.get(ctx, &existing, "SELECT * FROM addresses WHERE address = ?", normalized)
	switch {
	case err == nil:
		if existing.DisplayName == "" && displayName != "" {
			if _, err := s.exec(ctx,
				"UPDATE addresses SET display_name = ? WHERE id = ?",
				displayName, existing.ID,
			); err != nil {
				return nil, fmt.Errorf("updating address %s: %w", normalized, err)
			}
			existing.DisplayName = displayName
		}
		return &existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("finding address %s: %w", normalized, err)
	}

	addr := model.Address{
		ID:          uuid.New().String(),
		Address:     normalized,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.exec(ctx,
		"INSERT INTO addresses (id, address, display_name, created_at) VALUES (?, ?, ?, ?)",
		addr.ID, addr.Address, addr.DisplayName, addr.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating address %s: %w", normalized, err)
	}
	return &addr, nil
}

// GetAddress retrieves an address by ID.
func (s *SQLStore) GetAddress(ctx context.Context, id string) (*model.Address, error) {
	var addr model.Address
	if err := s.get(ctx, &addr, "SELECT * FROM addresses WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("getting address %s: %w", id, err)
	}
	return &addr, nil
}
