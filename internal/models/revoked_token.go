package models

import "time"

// RevokedToken denylists a bearer token until its natural expiry.
// TokenHash is the hex SHA-256 of the raw token.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey"`
	TokenHash string    `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}
