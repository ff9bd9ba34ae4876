package jwt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

const (
	refreshTokenBytes      = 48
	verificationTokenBytes = 32
)

// Claims carried by an access token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (c Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// NewAccessToken signs a short-lived access token with an HMAC algorithm
// (HS256 unless configured otherwise).
func NewAccessToken(
	userID uuid.UUID,
	email string,
	emailVerified bool,
	secret, algorithm string,
	ttl time.Duration,
) (string, error) {
	const op = "lib.jwt.NewAccessToken"

	method, err := hmacMethod(algorithm)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         email,
		EmailVerified: emailVerified,
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// ParseAccessToken verifies signature and expiry. It returns ErrTokenExpired
// for a well-signed token past its expiry and ErrTokenInvalid for everything
// else, so callers can distinguish the two or treat both as unauthenticated.
func ParseAccessToken(tokenStr, secret, algorithm string) (Claims, error) {
	claims := Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{algorithm}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	if !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

// NewRefreshToken returns an unguessable opaque refresh secret,
// 48 random bytes base64url encoded.
func NewRefreshToken() (string, error) {
	return randomToken(refreshTokenBytes)
}

// HashRefreshToken is the deterministic digest stored server-side in place
// of the refresh secret.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewVerificationToken returns an opaque email-verification secret,
// 32 random bytes base64url encoded.
func NewVerificationToken() (string, error) {
	return randomToken(verificationTokenBytes)
}

func randomToken(size int) (string, error) {
	const op = "lib.jwt.randomToken"

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hmacMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	return method, nil
}
