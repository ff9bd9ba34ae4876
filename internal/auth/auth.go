package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	libjwt "github.com/mbt1/LanguageLearnApp/internal/lib/jwt"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
	"github.com/mbt1/LanguageLearnApp/internal/lib/passwords"
	"github.com/mbt1/LanguageLearnApp/internal/session"
	"github.com/mbt1/LanguageLearnApp/internal/storage"
)

var (
	ErrUserExists               = errors.New("email already registered")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrNoRefreshToken           = errors.New("no refresh token")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrRefreshTokenExpired      = errors.New("refresh token expired")
	ErrUserNotFound             = errors.New("user not found")
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	ErrVerificationTokenExpired = errors.New("verification token expired")
	ErrAlreadyVerified          = errors.New("email already verified")
)

// EmailSender is the delivery capability. The RabbitMQ publisher implements
// it in dev/prod, the console mailer locally, and tests swap in a recorder.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, link string) error
}

type Auth struct {
	log             *slog.Logger
	storage         storage.Storage
	issuer          *session.Issuer
	mailer          EmailSender
	bcryptCost      int
	verificationTTL time.Duration
	verifyBaseURL   string

	// Precomputed hash verified against on the absent-user login path so
	// its elapsed time matches the wrong-password path.
	dummyHash string

	// verifyPassword wraps passwords.Verify; tests swap it to observe which
	// hash a login path burned.
	verifyPassword func(plain, hashed string) bool
}

func New(
	log *slog.Logger,
	st storage.Storage,
	issuer *session.Issuer,
	mailer EmailSender,
	bcryptCost int,
	verificationTTL time.Duration,
	verifyBaseURL string,
) (*Auth, error) {
	const op = "auth.New"

	dummyHash, err := passwords.Hash("dummy-constant-time-defense", bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Auth{
		log:             log,
		storage:         st,
		issuer:          issuer,
		mailer:          mailer,
		bcryptCost:      bcryptCost,
		verificationTTL: verificationTTL,
		verifyBaseURL:   verifyBaseURL,
		dummyHash:       dummyHash,
		verifyPassword:  passwords.Verify,
	}, nil
}

// Register creates a user, queues the verification email and issues a
// session, all in one transaction.
func (a *Auth) Register(ctx context.Context, email, password string, displayName *string) (session.Session, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := passwords.Hash(password, a.bcryptCost)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))
		return session.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	var sess session.Session

	err = a.storage.InTx(ctx, func(tx storage.Storage) error {
		user, err := tx.SaveUser(ctx, email, displayName, &passHash)
		if err != nil {
			if errors.Is(err, storage.ErrUserExists) {
				return ErrUserExists
			}
			return fmt.Errorf("%s: failed to save user: %w", op, err)
		}

		if err := a.sendVerification(ctx, tx, user.ID, user.Email); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		sess, err = a.issuer.Issue(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			log.Warn("email already registered")
			return session.Session{}, ErrUserExists
		}

		log.Error("failed to register user", sl.Err(err))
		return session.Session{}, err
	}

	log.Info("user registered", slog.String("uid", sess.UserID.String()))

	return sess, nil
}

// Login verifies credentials and issues a session. Absent user, passkey-only
// user and wrong password all collapse into ErrInvalidCredentials.
func (a *Auth) Login(ctx context.Context, email, password string) (session.Session, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	var sess session.Session

	err := a.storage.InTx(ctx, func(tx storage.Storage) error {
		user, err := tx.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				// Burn the same bcrypt cost as the real path.
				a.verifyPassword(password, a.dummyHash)
				return ErrInvalidCredentials
			}
			return fmt.Errorf("%s: failed to get user: %w", op, err)
		}

		if !user.HasPassword() {
			return ErrInvalidCredentials
		}

		if !a.verifyPassword(password, *user.PassHash) {
			return ErrInvalidCredentials
		}

		sess, err = a.issuer.Issue(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Info("invalid credentials")
			return session.Session{}, ErrInvalidCredentials
		}

		log.Error("failed to login user", sl.Err(err))
		return session.Session{}, err
	}

	log.Info("user logged in", slog.String("uid", sess.UserID.String()))

	return sess, nil
}

// Refresh rotates the presented refresh token: the old row is revoked before
// a new session is issued, inside the same transaction, so the same secret
// can never succeed twice.
func (a *Auth) Refresh(ctx context.Context, rawToken string) (session.Session, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	tokenHash := libjwt.HashRefreshToken(rawToken)

	var sess session.Session

	err := a.storage.InTx(ctx, func(tx storage.Storage) error {
		stored, err := tx.RefreshToken(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, storage.ErrRefreshTokenNotFound) {
				return ErrInvalidRefreshToken
			}
			return fmt.Errorf("%s: failed to get refresh token: %w", op, err)
		}

		if stored.Revoked {
			return ErrInvalidRefreshToken
		}

		if stored.IsExpired() {
			if err := tx.RevokeRefreshToken(ctx, tokenHash); err != nil {
				return fmt.Errorf("%s: failed to revoke expired token: %w", op, err)
			}
			return ErrRefreshTokenExpired
		}

		if err := tx.RevokeRefreshToken(ctx, tokenHash); err != nil {
			return fmt.Errorf("%s: failed to revoke token: %w", op, err)
		}

		user, err := tx.UserByID(ctx, stored.UserID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("%s: failed to get user: %w", op, err)
		}

		sess, err = a.issuer.Issue(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRefreshToken),
			errors.Is(err, ErrRefreshTokenExpired),
			errors.Is(err, ErrUserNotFound):
			log.Warn("refresh rejected", sl.Err(err))
			return session.Session{}, err
		}

		log.Error("failed to refresh session", sl.Err(err))
		return session.Session{}, err
	}

	log.Info("session refreshed", slog.String("uid", sess.UserID.String()))

	return sess, nil
}

// Logout revokes the presented refresh token. Unknown tokens are not an
// error; the cookie is cleared by the handler either way.
func (a *Auth) Logout(ctx context.Context, rawToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if err := a.storage.RevokeRefreshToken(ctx, libjwt.HashRefreshToken(rawToken)); err != nil {
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out")

	return nil
}

// VerifyEmail consumes a verification token, flipping email_verified and
// deleting the row in one transaction. Expired tokens are deleted on sight.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op))

	err := a.storage.InTx(ctx, func(tx storage.Storage) error {
		stored, err := tx.VerificationToken(ctx, token)
		if err != nil {
			if errors.Is(err, storage.ErrVerificationTokenNotFound) {
				return ErrInvalidVerificationToken
			}
			return fmt.Errorf("%s: failed to get token: %w", op, err)
		}

		if stored.IsExpired() {
			if err := tx.DeleteVerificationToken(ctx, token); err != nil {
				return fmt.Errorf("%s: failed to delete expired token: %w", op, err)
			}
			return ErrVerificationTokenExpired
		}

		if err := tx.SetEmailVerified(ctx, stored.UserID); err != nil {
			return fmt.Errorf("%s: failed to mark verified: %w", op, err)
		}

		if err := tx.DeleteVerificationToken(ctx, token); err != nil {
			return fmt.Errorf("%s: failed to delete token: %w", op, err)
		}

		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidVerificationToken),
			errors.Is(err, ErrVerificationTokenExpired):
			log.Warn("verification rejected", sl.Err(err))
			return err
		}

		log.Error("failed to verify email", sl.Err(err))
		return err
	}

	log.Info("email verified")

	return nil
}

// ResendVerification issues a fresh verification token for an authenticated,
// not-yet-verified caller. Older unexpired tokens stay valid alongside it.
func (a *Auth) ResendVerification(ctx context.Context, userID uuid.UUID, email string, emailVerified bool) error {
	const op = "auth.ResendVerification"

	log := a.log.With(slog.String("op", op))

	if emailVerified {
		return ErrAlreadyVerified
	}

	err := a.storage.InTx(ctx, func(tx storage.Storage) error {
		return a.sendVerification(ctx, tx, userID, email)
	})
	if err != nil {
		log.Error("failed to resend verification", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("verification email resent", slog.String("uid", userID.String()))

	return nil
}

func (a *Auth) sendVerification(ctx context.Context, tx storage.Storage, userID uuid.UUID, email string) error {
	token, err := libjwt.NewVerificationToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(a.verificationTTL)
	if err := tx.SaveVerificationToken(ctx, userID, token, expiresAt); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", a.verifyBaseURL, token)

	return a.mailer.SendVerificationEmail(ctx, email, link)
}
