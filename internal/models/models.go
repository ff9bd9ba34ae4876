package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID
	Email         string
	DisplayName   *string
	PassHash      *string
	EmailVerified bool
	CreatedAt     time.Time
}

// HasPassword reports whether the account can log in with a password.
// Passkey-only accounts have no hash stored.
func (u User) HasPassword() bool {
	return u.PassHash != nil && *u.PassHash != ""
}

type RefreshToken struct {
	TokenHash string
	UserID    uuid.UUID
	ExpiresAt time.Time
	Revoked   bool
}

func (rt RefreshToken) IsExpired() bool {
	return rt.ExpiresAt.Before(time.Now())
}

type EmailVerificationToken struct {
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

func (t EmailVerificationToken) IsExpired() bool {
	return t.ExpiresAt.Before(time.Now())
}

type Passkey struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CredentialID []byte
	PublicKey    []byte
	SignCount    uint32
	Name         *string
	CreatedAt    time.Time
}

type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}
