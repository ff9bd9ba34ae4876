package passkeys

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbt1/LanguageLearnApp/internal/models"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys/challenge"
	"github.com/mbt1/LanguageLearnApp/internal/session"
	"github.com/mbt1/LanguageLearnApp/internal/storage/memory"
)

func newTestPasskeys(t *testing.T) (*Passkeys, *memory.MemoryRepo) {
	t.Helper()

	web, err := webauthn.New(&webauthn.Config{
		RPID:          "localhost",
		RPDisplayName: "LanguageLearn",
		RPOrigins:     []string{"http://localhost:5173"},
	})
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.New()
	issuer := session.NewIssuer("test-secret", "HS256", 15*time.Minute, 7*24*time.Hour)

	return New(log, repo, web, challenge.New(time.Minute), issuer), repo
}

func newTestUser(t *testing.T, repo *memory.MemoryRepo, email string) models.User {
	t.Helper()

	user, err := repo.SaveUser(context.Background(), email, nil, nil)
	require.NoError(t, err)

	return user
}

func newTestPasskey(t *testing.T, repo *memory.MemoryRepo, userID uuid.UUID, credentialID []byte) models.Passkey {
	t.Helper()

	pk, err := repo.SavePasskey(context.Background(), models.Passkey{
		UserID:       userID,
		CredentialID: credentialID,
		PublicKey:    []byte{0x01, 0x02, 0x03},
		SignCount:    7,
	})
	require.NoError(t, err)

	return pk
}

// assertion builds the minimal client payload carrying a credential id.
func assertion(credentialID []byte) []byte {
	encoded := base64.RawURLEncoding.EncodeToString(credentialID)
	return []byte(fmt.Sprintf(`{"id":%q,"rawId":%q,"type":"public-key"}`, encoded, encoded))
}

// fullAssertion builds a structurally valid assertion whose authenticator
// data reports the given sign counter. The signature is garbage; combine
// with a stubbed validateLogin.
func fullAssertion(credentialID []byte, counter uint32) []byte {
	rpIDHash := sha256.Sum256([]byte("localhost"))

	authData := make([]byte, 0, 37)
	authData = append(authData, rpIDHash[:]...)
	authData = append(authData, 0x01) // user present
	authData = binary.BigEndian.AppendUint32(authData, counter)

	clientData := []byte(`{"type":"webauthn.get","challenge":"c","origin":"http://localhost:5173"}`)

	encoded := base64.RawURLEncoding.EncodeToString(credentialID)
	return []byte(fmt.Sprintf(
		`{"id":%q,"rawId":%q,"type":"public-key","response":{"clientDataJSON":%q,"authenticatorData":%q,"signature":%q}}`,
		encoded,
		encoded,
		base64.RawURLEncoding.EncodeToString(clientData),
		base64.RawURLEncoding.EncodeToString(authData),
		base64.RawURLEncoding.EncodeToString([]byte("sig")),
	))
}

func TestRegistrationOptions(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")

	raw, err := p.RegistrationOptions(ctx, user.ID, user.Email)
	require.NoError(t, err)

	var options struct {
		PublicKey struct {
			Challenge string `json:"challenge"`
			RP        struct {
				ID string `json:"id"`
			} `json:"rp"`
		} `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal(raw, &options))

	assert.NotEmpty(t, options.PublicKey.Challenge)
	assert.Equal(t, "localhost", options.PublicKey.RP.ID)
}

func TestRegistrationVerify_NoPendingChallenge(t *testing.T) {
	p, repo := newTestPasskeys(t)
	user := newTestUser(t, repo, "anna@example.com")

	err := p.RegistrationVerify(context.Background(), user.ID, user.Email, []byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestRegistrationVerify_ConsumesChallenge(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")

	_, err := p.RegistrationOptions(ctx, user.ID, user.Email)
	require.NoError(t, err)

	// A malformed attestation still burns the pending challenge.
	err = p.RegistrationVerify(ctx, user.ID, user.Email, []byte(`not json`), nil)
	assert.ErrorIs(t, err, ErrRegistrationFailed)

	err = p.RegistrationVerify(ctx, user.ID, user.Email, []byte(`not json`), nil)
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestAuthenticationOptions(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	pk := newTestPasskey(t, repo, user.ID, []byte("credential-1"))

	raw, err := p.AuthenticationOptions(ctx, user.Email)
	require.NoError(t, err)

	var options struct {
		PublicKey struct {
			Challenge        string `json:"challenge"`
			AllowCredentials []struct {
				ID string `json:"id"`
			} `json:"allowCredentials"`
		} `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal(raw, &options))

	assert.NotEmpty(t, options.PublicKey.Challenge)
	require.Len(t, options.PublicKey.AllowCredentials, 1)
	assert.Equal(t,
		base64.RawURLEncoding.EncodeToString(pk.CredentialID),
		options.PublicKey.AllowCredentials[0].ID,
	)
}

func TestAuthenticationOptions_NoAccountLeak(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	// Known email without passkeys and unknown email must be the same error.
	newTestUser(t, repo, "no-passkeys@example.com")

	_, err := p.AuthenticationOptions(ctx, "no-passkeys@example.com")
	assert.ErrorIs(t, err, ErrNoPasskeys)

	_, err = p.AuthenticationOptions(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNoPasskeys)
}

func TestAuthenticationVerify_NoPendingChallenge(t *testing.T) {
	p, _ := newTestPasskeys(t)

	_, err := p.AuthenticationVerify(context.Background(), "anna@example.com", assertion([]byte("credential-1")))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestAuthenticationVerify_UnknownCredential(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	newTestPasskey(t, repo, user.ID, []byte("credential-1"))

	_, err := p.AuthenticationOptions(ctx, user.Email)
	require.NoError(t, err)

	_, err = p.AuthenticationVerify(ctx, user.Email, assertion([]byte("never-registered")))
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestAuthenticationVerify_MalformedAssertion(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	newTestPasskey(t, repo, user.ID, []byte("credential-1"))

	_, err := p.AuthenticationOptions(ctx, user.Email)
	require.NoError(t, err)

	// Known credential id but no authenticator response attached.
	_, err = p.AuthenticationVerify(ctx, user.Email, assertion([]byte("credential-1")))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// The challenge was consumed by the failed attempt.
	_, err = p.AuthenticationVerify(ctx, user.Email, assertion([]byte("credential-1")))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestAuthenticationVerify_CloneDetected(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	credentialID := []byte("credential-1")
	newTestPasskey(t, repo, user.ID, credentialID)

	// The library flags a counter that has not advanced instead of failing.
	p.validateLogin = func(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
		return &webauthn.Credential{
			ID:            credentialID,
			Authenticator: webauthn.Authenticator{SignCount: 7, CloneWarning: true},
		}, nil
	}

	_, err := p.AuthenticationOptions(ctx, user.Email)
	require.NoError(t, err)

	_, err = p.AuthenticationVerify(ctx, user.Email, fullAssertion(credentialID, 7))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// The stale counter must not be persisted.
	stored, err := repo.PasskeyByCredentialID(ctx, credentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), stored.SignCount)
}

func TestAuthenticationVerify_AdvancesSignCount(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	credentialID := []byte("credential-1")
	newTestPasskey(t, repo, user.ID, credentialID)

	p.validateLogin = func(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
		return &webauthn.Credential{
			ID:            credentialID,
			Authenticator: webauthn.Authenticator{SignCount: 8},
		}, nil
	}

	_, err := p.AuthenticationOptions(ctx, user.Email)
	require.NoError(t, err)

	sess, err := p.AuthenticationVerify(ctx, user.Email, fullAssertion(credentialID, 8))
	require.NoError(t, err)

	assert.Equal(t, user.ID, sess.UserID)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)

	stored, err := repo.PasskeyByCredentialID(ctx, credentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), stored.SignCount)
}

func TestListAndDelete(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	user := newTestUser(t, repo, "anna@example.com")
	pk := newTestPasskey(t, repo, user.ID, []byte("credential-1"))

	stored, err := p.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, pk.ID, stored[0].ID)

	require.NoError(t, p.Delete(ctx, pk.ID, user.ID))

	stored, err = p.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDelete_NotFound(t *testing.T) {
	p, repo := newTestPasskeys(t)
	ctx := context.Background()

	owner := newTestUser(t, repo, "anna@example.com")
	other := newTestUser(t, repo, "boris@example.com")
	pk := newTestPasskey(t, repo, owner.ID, []byte("credential-1"))

	// Someone else's passkey and a nonexistent id report the same error.
	assert.ErrorIs(t, p.Delete(ctx, pk.ID, other.ID), ErrPasskeyNotFound)
	assert.ErrorIs(t, p.Delete(ctx, uuid.New(), owner.ID), ErrPasskeyNotFound)
}
