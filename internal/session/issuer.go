package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	libjwt "github.com/mbt1/LanguageLearnApp/internal/lib/jwt"
	"github.com/mbt1/LanguageLearnApp/internal/models"
)

// TokenSaver is the slice of storage the issuer needs. Passing the
// transaction-scoped repo here keeps issuance inside the caller's
// transaction.
type TokenSaver interface {
	SaveRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
}

// Session is the result of a successful login, registration, refresh or
// passkey authentication. The refresh secret leaves the server only inside
// the cookie; storage keeps its digest.
type Session struct {
	UserID        uuid.UUID
	Email         string
	EmailVerified bool
	AccessToken   string
	RefreshToken  string
}

type Issuer struct {
	secret     string
	algorithm  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(secret, algorithm string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     secret,
		algorithm:  algorithm,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue creates an access token and a fresh refresh secret, persisting the
// refresh digest via st. Every call produces a new refresh row.
func (i *Issuer) Issue(ctx context.Context, st TokenSaver, user models.User) (Session, error) {
	const op = "session.Issue"

	accessToken, err := libjwt.NewAccessToken(
		user.ID,
		user.Email,
		user.EmailVerified,
		i.secret,
		i.algorithm,
		i.accessTTL,
	)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := libjwt.NewRefreshToken()
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := time.Now().Add(i.refreshTTL)
	if err := st.SaveRefreshToken(ctx, user.ID, libjwt.HashRefreshToken(refreshToken), expiresAt); err != nil {
		return Session{}, fmt.Errorf("%s: failed to save refresh token: %w", op, err)
	}

	return Session{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
	}, nil
}

// RefreshTTL is exposed for the cookie max-age.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}
