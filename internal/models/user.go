package models

import "time"

// User is the account record the realtime layer reads for display and presence.
type User struct {
	ID        int        `db:"id" json:"id"`
	Username  string     `db:"username" json:"username"`
	Email     string     `db:"email" json:"email"`
	Avatar    string     `db:"avatar" json:"avatar"`
	IsOnline  bool       `db:"is_online" json:"is_online"`
	LastSeen  *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// UserSummary is the sender block embedded in outbound message events.
type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// Summary strips a user to the fields clients render next to a message.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}
