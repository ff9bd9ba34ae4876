package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mbt1/LanguageLearnApp/internal/models"
)

var (
	ErrUserExists                = errors.New("user already exists")
	ErrUserNotFound              = errors.New("user not found")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
	ErrPasskeyExists             = errors.New("passkey already exists")
	ErrPasskeyNotFound           = errors.New("passkey not found")
)

// Storage is the persistence boundary shared by the auth and passkey
// services. Both *postgres.PostgresRepo and the in-memory test
// implementation satisfy it.
type Storage interface {
	SaveUser(ctx context.Context, email string, displayName, passHash *string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error

	SaveRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	RefreshToken(ctx context.Context, tokenHash string) (models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error

	SaveVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	VerificationToken(ctx context.Context, token string) (models.EmailVerificationToken, error)
	DeleteVerificationToken(ctx context.Context, token string) error

	SavePasskey(ctx context.Context, passkey models.Passkey) (models.Passkey, error)
	PasskeyByCredentialID(ctx context.Context, credentialID []byte) (models.Passkey, error)
	PasskeysForUser(ctx context.Context, userID uuid.UUID) ([]models.Passkey, error)
	UpdatePasskeySignCount(ctx context.Context, credentialID []byte, signCount uint32) error
	DeletePasskey(ctx context.Context, id, userID uuid.UUID) error

	// InTx runs fn against a transaction-scoped Storage. A nil error
	// commits, anything else rolls back.
	InTx(ctx context.Context, fn func(tx Storage) error) error
}
