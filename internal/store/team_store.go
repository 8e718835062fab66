package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/threadmail/internal/model"
)

// CreateTeam inserts a new team.
func (s *SQLStore) CreateTeam(ctx context.Context, team *model.Team) error {
	if strings.TrimSpace(team.Name) == "" {
		return fmt.Errorf("team name must not be empty")
	}
	if team.ID == "" {
		team.ID = uuid.New().String()
	}
	team.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx,
		"INSERT INTO teams (id, name, created_at) VALUES (?, ?, ?)",
		team.ID, team.Name, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID.
func (s *SQLStore) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	var team model.Team
	if err := s.get(ctx, &team, "SELECT * FROM teams WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("getting team %s: %w", id, err)
	}
	return &team, nil
}
