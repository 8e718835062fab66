package model

import "time"

// TeamModel is the related model name of team records.
const TeamModel = "team"

// Entity is the record a conversation is about.
type Entity struct {
	Model string
	ID    string
	Name  string

	// Group is set for team-like records whose name can stand in for a
	// missing subject.
	Group bool
}

// Team is a named group of users with its own conversation stream.
type Team struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Entity returns the team as a related entity.
func (t Team) Entity() *Entity {
	return &Entity{Model: TeamModel, ID: t.ID, Name: t.Name, Group: true}
}
