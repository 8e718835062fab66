package model

import "time"

// Follower subscribes a user or a raw address to the conversation about a
// related record. Archived followers receive no mail.
type Follower struct {
	ID           string  `json:"id" db:"id"`
	RelatedModel string  `json:"related_model" db:"related_model"`
	RelatedID    string  `json:"related_id" db:"related_id"`
	UserID       *string `json:"user_id,omitempty" db:"user_id"`
	AddressID    *string `json:"address_id,omitempty" db:"address_id"`
	Archived     bool    `json:"archived" db:"archived"`

	// UserEmail and Address are populated by join queries.
	UserEmail string `json:"user_email,omitempty" db:"user_email"`
	Address   string `json:"address,omitempty" db:"address"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Email returns the address mail to this follower goes to: the follower's
// own address if set, otherwise its user's email. Empty when neither exists.
func (f Follower) Email() string {
	if f.Address != "" {
		return f.Address
	}
	return f.UserEmail
}
