// Package memory is an in-memory Storage used by service and handler tests.
// It enforces the same uniqueness constraints as the postgres schema.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbt1/LanguageLearnApp/internal/models"
	"github.com/mbt1/LanguageLearnApp/internal/storage"
)

type MemoryRepo struct {
	mu sync.Mutex

	users         map[uuid.UUID]models.User
	refreshTokens map[string]models.RefreshToken
	verifyTokens  []models.EmailVerificationToken
	passkeys      map[uuid.UUID]models.Passkey
}

func New() *MemoryRepo {
	return &MemoryRepo{
		users:         make(map[uuid.UUID]models.User),
		refreshTokens: make(map[string]models.RefreshToken),
		passkeys:      make(map[uuid.UUID]models.Passkey),
	}
}

// InTx just runs fn against the same repo. The in-memory map has no
// rollback; tests that need partial-failure behavior assert on the
// service's error instead.
func (r *MemoryRepo) InTx(_ context.Context, fn func(tx storage.Storage) error) error {
	return fn(r)
}

func (r *MemoryRepo) SaveUser(_ context.Context, email string, displayName, passHash *string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return models.User{}, storage.ErrUserExists
		}
	}

	user := models.User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		PassHash:    passHash,
		CreatedAt:   time.Now(),
	}
	r.users[user.ID] = user

	return user, nil
}

func (r *MemoryRepo) UserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (r *MemoryRepo) UserByID(_ context.Context, id uuid.UUID) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, nil
}

func (r *MemoryRepo) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}

	u.EmailVerified = true
	r.users[id] = u

	return nil
}

func (r *MemoryRepo) SaveRefreshToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshTokens[tokenHash] = models.RefreshToken{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (r *MemoryRepo) RefreshToken(_ context.Context, tokenHash string) (models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.refreshTokens[tokenHash]
	if !ok {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, nil
}

func (r *MemoryRepo) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.refreshTokens[tokenHash]; ok {
		rt.Revoked = true
		r.refreshTokens[tokenHash] = rt
	}

	return nil
}

func (r *MemoryRepo) RevokeAllRefreshTokens(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, rt := range r.refreshTokens {
		if rt.UserID == userID {
			rt.Revoked = true
			r.refreshTokens[hash] = rt
		}
	}

	return nil
}

func (r *MemoryRepo) SaveVerificationToken(_ context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.verifyTokens = append(r.verifyTokens, models.EmailVerificationToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})

	return nil
}

func (r *MemoryRepo) VerificationToken(_ context.Context, token string) (models.EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.verifyTokens {
		if t.Token == token {
			return t, nil
		}
	}

	return models.EmailVerificationToken{}, storage.ErrVerificationTokenNotFound
}

func (r *MemoryRepo) DeleteVerificationToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.verifyTokens[:0]
	for _, t := range r.verifyTokens {
		if t.Token != token {
			kept = append(kept, t)
		}
	}
	r.verifyTokens = kept

	return nil
}

func (r *MemoryRepo) SavePasskey(_ context.Context, passkey models.Passkey) (models.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pk := range r.passkeys {
		if bytes.Equal(pk.CredentialID, passkey.CredentialID) {
			return models.Passkey{}, storage.ErrPasskeyExists
		}
	}

	passkey.ID = uuid.New()
	passkey.CreatedAt = time.Now()
	r.passkeys[passkey.ID] = passkey

	return passkey, nil
}

func (r *MemoryRepo) PasskeyByCredentialID(_ context.Context, credentialID []byte) (models.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pk := range r.passkeys {
		if bytes.Equal(pk.CredentialID, credentialID) {
			return pk, nil
		}
	}

	return models.Passkey{}, storage.ErrPasskeyNotFound
}

func (r *MemoryRepo) PasskeysForUser(_ context.Context, userID uuid.UUID) ([]models.Passkey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Passkey
	for _, pk := range r.passkeys {
		if pk.UserID == userID {
			out = append(out, pk)
		}
	}

	return out, nil
}

func (r *MemoryRepo) UpdatePasskeySignCount(_ context.Context, credentialID []byte, signCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, pk := range r.passkeys {
		if bytes.Equal(pk.CredentialID, credentialID) {
			pk.SignCount = signCount
			r.passkeys[id] = pk
			return nil
		}
	}

	return storage.ErrPasskeyNotFound
}

func (r *MemoryRepo) DeletePasskey(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pk, ok := r.passkeys[id]
	if !ok || pk.UserID != userID {
		return storage.ErrPasskeyNotFound
	}

	delete(r.passkeys, id)

	return nil
}
