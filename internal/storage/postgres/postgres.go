package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbt1/LanguageLearnApp/internal/config"
	"github.com/mbt1/LanguageLearnApp/internal/models"
	"github.com/mbt1/LanguageLearnApp/internal/storage"
)

const uniqueViolationCode = "23505"

// querier is the subset of pgx used by the repo. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so the same methods serve pooled and transactional
// calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepo struct {
	db   querier
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{db: pool, pool: pool}, nil
}

// InTx runs fn against a transaction-scoped repo, committing on nil error
// and rolling back otherwise. Calling InTx on a repo that is already
// transactional just reuses the open transaction.
func (r *PostgresRepo) InTx(ctx context.Context, fn func(tx storage.Storage) error) error {
	const op = "storage.postgres.InTx"

	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin: %w", op, err)
	}

	if err := fn(&PostgresRepo{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, email string, displayName, passHash *string) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (email, display_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, display_name, password_hash, email_verified, created_at;
	`

	var u models.User
	err := r.db.QueryRow(ctx, query, email, displayName, passHash).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PassHash,
		&u.EmailVerified,
		&u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.User{}, storage.ErrUserExists
		}

		return models.User{}, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, email_verified, created_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, email_verified, created_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PassHash,
		&u.EmailVerified,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storage.ErrUserNotFound
	}

	return u, err
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET email_verified = TRUE WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id)

	return err
}

func (r *PostgresRepo) SaveRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	const query = `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.Exec(ctx, query, userID, tokenHash, expiresAt)
	return err
}

func (r *PostgresRepo) RefreshToken(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	const query = `
		SELECT token_hash, user_id, expires_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1;
	`

	var rt models.RefreshToken
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&rt.TokenHash,
		&rt.UserID,
		&rt.ExpiresAt,
		&rt.Revoked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
	}

	return rt, err
}

func (r *PostgresRepo) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`

	_, err := r.db.Exec(ctx, query, tokenHash)

	return err
}

func (r *PostgresRepo) RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1`

	_, err := r.db.Exec(ctx, query, userID)

	return err
}

func (r *PostgresRepo) SaveVerificationToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	const query = `
		INSERT INTO email_verification_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.Exec(ctx, query, userID, token, expiresAt)
	return err
}

func (r *PostgresRepo) VerificationToken(ctx context.Context, token string) (models.EmailVerificationToken, error) {
	const query = `
		SELECT token, user_id, expires_at
		FROM email_verification_tokens
		WHERE token = $1;
	`

	var t models.EmailVerificationToken
	err := r.db.QueryRow(ctx, query, token).Scan(&t.Token, &t.UserID, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EmailVerificationToken{}, storage.ErrVerificationTokenNotFound
	}

	return t, err
}

func (r *PostgresRepo) DeleteVerificationToken(ctx context.Context, token string) error {
	query := `DELETE FROM email_verification_tokens WHERE token = $1`

	_, err := r.db.Exec(ctx, query, token)

	return err
}

func (r *PostgresRepo) SavePasskey(ctx context.Context, passkey models.Passkey) (models.Passkey, error) {
	const op = "storage.postgres.SavePasskey"

	query := `
		INSERT INTO user_passkeys (user_id, credential_id, public_key, sign_count, name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at;
	`

	err := r.db.QueryRow(ctx, query,
		passkey.UserID,
		passkey.CredentialID,
		passkey.PublicKey,
		passkey.SignCount,
		passkey.Name,
	).Scan(&passkey.ID, &passkey.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return models.Passkey{}, storage.ErrPasskeyExists
		}

		return models.Passkey{}, fmt.Errorf("%s: failed to save passkey: %w", op, err)
	}

	return passkey, nil
}

func (r *PostgresRepo) PasskeyByCredentialID(ctx context.Context, credentialID []byte) (models.Passkey, error) {
	const query = `
		SELECT id, user_id, credential_id, public_key, sign_count, name, created_at
		FROM user_passkeys
		WHERE credential_id = $1;
	`

	var p models.Passkey
	err := r.db.QueryRow(ctx, query, credentialID).Scan(
		&p.ID,
		&p.UserID,
		&p.CredentialID,
		&p.PublicKey,
		&p.SignCount,
		&p.Name,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Passkey{}, storage.ErrPasskeyNotFound
	}

	return p, err
}

func (r *PostgresRepo) PasskeysForUser(ctx context.Context, userID uuid.UUID) ([]models.Passkey, error) {
	const query = `
		SELECT id, user_id, credential_id, public_key, sign_count, name, created_at
		FROM user_passkeys
		WHERE user_id = $1
		ORDER BY created_at;
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passkeys []models.Passkey
	for rows.Next() {
		var p models.Passkey
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.CredentialID,
			&p.PublicKey,
			&p.SignCount,
			&p.Name,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		passkeys = append(passkeys, p)
	}

	return passkeys, rows.Err()
}

func (r *PostgresRepo) UpdatePasskeySignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	query := `UPDATE user_passkeys SET sign_count = $1 WHERE credential_id = $2`

	_, err := r.db.Exec(ctx, query, signCount, credentialID)

	return err
}

func (r *PostgresRepo) DeletePasskey(ctx context.Context, id, userID uuid.UUID) error {
	query := `DELETE FROM user_passkeys WHERE id = $1 AND user_id = $2`

	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrPasskeyNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
