package users

import (
	"strings"
	"time"
)

// Identity records a caller known to the service, keyed by the token subject.
type Identity struct {
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	Username    string    `gorm:"column:username;size:320"`
	Email       string    `gorm:"column:user_email;size:320"`
	Role        string    `gorm:"column:role;size:64"`
	FirstSeenAt time.Time `gorm:"column:first_seen_at;not null"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
