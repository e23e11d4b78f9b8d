// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Email is stored trimmed and lowercased, so equality checks on it are
// case-insensitive by construction. PasswordHash is empty for accounts
// created through GitHub sign-in; such accounts cannot log in with a
// password.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	Name         string    `json:"name"      db:"name"`
	Bio          string    `json:"bio"       db:"bio"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the only shape in which a User leaves the service layer.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ToPublic strips password material. Handlers never encode a *User directly.
func ToPublic(u *User) PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
