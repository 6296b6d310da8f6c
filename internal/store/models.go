package store

import "time"

type User struct {
	ID          string
	DisplayName string
}

type Board struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Member is a user's standing on one board. PrivateID is the member's secret
// used to seal anonymous poll votes; it never leaves the server except inside
// the member's own validation context.
type Member struct {
	BoardID   string
	UserID    string
	IsAdmin   bool
	PrivateID string
}
