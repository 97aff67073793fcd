package models

import "time"

// User is a registered account. Email is unique across all users.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
	Messages     []Message `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
