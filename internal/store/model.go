package store

import "time"

type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	Model
	ID        int64
	UID       string
	Username  string
	FirstName string
	LastName  string
	Email     string
}

// Identity links an external social-login account to a local user.
type Identity struct {
	Model
	ID         int64
	User       User
	Provider   string
	ExternalID string
	Picture    string
}

type Photo struct {
	Model
	ID       int64
	UserID   int64
	Title    string
	PublicID string
	ImageURL string
	Effect   string
}
