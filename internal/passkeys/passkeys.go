package passkeys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
	"github.com/mbt1/LanguageLearnApp/internal/models"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys/challenge"
	"github.com/mbt1/LanguageLearnApp/internal/session"
	"github.com/mbt1/LanguageLearnApp/internal/storage"
)

var (
	ErrNoPendingChallenge   = errors.New("no pending challenge")
	ErrNoPasskeys           = errors.New("no passkeys registered for this email")
	ErrUnknownCredential    = errors.New("unknown credential")
	ErrRegistrationFailed   = errors.New("registration verification failed")
	ErrAuthenticationFailed = errors.New("authentication verification failed")
	ErrPasskeyNotFound      = errors.New("passkey not found")
)

const (
	regKeyPrefix  = "reg:"
	authKeyPrefix = "auth:"
)

type Passkeys struct {
	log        *slog.Logger
	storage    storage.Storage
	web        *webauthn.WebAuthn
	challenges *challenge.Store
	issuer     *session.Issuer

	// validateLogin wraps the library's assertion check; tests swap it to
	// exercise the paths behind it.
	validateLogin func(user webauthn.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

func New(
	log *slog.Logger,
	st storage.Storage,
	web *webauthn.WebAuthn,
	challenges *challenge.Store,
	issuer *session.Issuer,
) *Passkeys {
	return &Passkeys{
		log:           log,
		storage:       st,
		web:           web,
		challenges:    challenges,
		issuer:        issuer,
		validateLogin: web.ValidateLogin,
	}
}

// RegistrationOptions starts the registration ceremony for an authenticated
// user. Existing credentials go on the exclusion list so the same
// authenticator cannot be registered twice.
func (p *Passkeys) RegistrationOptions(ctx context.Context, userID uuid.UUID, email string) (json.RawMessage, error) {
	const op = "passkeys.RegistrationOptions"

	log := p.log.With(slog.String("op", op))

	existing, err := p.storage.PasskeysForUser(ctx, userID)
	if err != nil {
		log.Error("failed to list passkeys", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, pk := range existing {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: pk.CredentialID,
		})
	}

	user := webauthnUser{id: []byte(userID.String()), name: email}

	options, sessionData, err := p.web.BeginRegistration(
		user,
		webauthn.WithExclusions(exclusions),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		}),
	)
	if err != nil {
		log.Error("failed to begin registration", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p.challenges.Store(regKeyPrefix+userID.String(), *sessionData, userID.String())

	serialized, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("registration options issued", slog.String("uid", userID.String()))

	return serialized, nil
}

// RegistrationVerify finishes the ceremony: the pending challenge is popped
// (so a replayed verify finds nothing), the attestation is checked against
// challenge, RP id and origin, and the credential is persisted.
func (p *Passkeys) RegistrationVerify(ctx context.Context, userID uuid.UUID, email string, credential []byte, name *string) error {
	const op = "passkeys.RegistrationVerify"

	log := p.log.With(slog.String("op", op))

	sessionData, _, ok := p.challenges.Pop(regKeyPrefix + userID.String())
	if !ok {
		log.Warn("no pending registration challenge")
		return ErrNoPendingChallenge
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(credential))
	if err != nil {
		log.Warn("failed to parse attestation", sl.Err(err))
		return ErrRegistrationFailed
	}

	user := webauthnUser{id: []byte(userID.String()), name: email}

	cred, err := p.web.CreateCredential(user, sessionData, parsed)
	if err != nil {
		log.Warn("attestation rejected", sl.Err(err))
		return ErrRegistrationFailed
	}

	_, err = p.storage.SavePasskey(ctx, models.Passkey{
		UserID:       userID,
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, storage.ErrPasskeyExists) {
			return ErrRegistrationFailed
		}

		log.Error("failed to save passkey", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("passkey registered", slog.String("uid", userID.String()))

	return nil
}

// AuthenticationOptions starts the login ceremony. An unknown email and an
// email with zero passkeys are the same error, so account existence does not
// leak.
func (p *Passkeys) AuthenticationOptions(ctx context.Context, email string) (json.RawMessage, error) {
	const op = "passkeys.AuthenticationOptions"

	log := p.log.With(slog.String("op", op))

	user, err := p.storage.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("unknown email for passkey login")
			return nil, ErrNoPasskeys
		}

		log.Error("failed to get user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stored, err := p.storage.PasskeysForUser(ctx, user.ID)
	if err != nil {
		log.Error("failed to list passkeys", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(stored) == 0 {
		log.Info("no passkeys for email")
		return nil, ErrNoPasskeys
	}

	options, sessionData, err := p.web.BeginLogin(newWebauthnUser(user, stored))
	if err != nil {
		log.Error("failed to begin login", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p.challenges.Store(authKeyPrefix+email, *sessionData, email)

	serialized, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("authentication options issued")

	return serialized, nil
}

// AuthenticationVerify finishes the login ceremony and issues a session.
// The assertion is validated against the stored public key and sign count;
// a counter that has not advanced past the stored one is treated as a
// cloned authenticator and rejected.
func (p *Passkeys) AuthenticationVerify(ctx context.Context, email string, credential []byte) (session.Session, error) {
	const op = "passkeys.AuthenticationVerify"

	log := p.log.With(slog.String("op", op))

	sessionData, _, ok := p.challenges.Pop(authKeyPrefix + email)
	if !ok {
		log.Warn("no pending authentication challenge")
		return session.Session{}, ErrNoPendingChallenge
	}

	credentialID, err := rawCredentialID(credential)
	if err != nil {
		log.Warn("failed to extract credential id", sl.Err(err))
		return session.Session{}, ErrUnknownCredential
	}

	var sess session.Session

	err = p.storage.InTx(ctx, func(tx storage.Storage) error {
		if _, err := tx.PasskeyByCredentialID(ctx, credentialID); err != nil {
			if errors.Is(err, storage.ErrPasskeyNotFound) {
				return ErrUnknownCredential
			}
			return fmt.Errorf("%s: failed to get passkey: %w", op, err)
		}

		user, err := tx.UserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return ErrUnknownCredential
			}
			return fmt.Errorf("%s: failed to get user: %w", op, err)
		}

		stored, err := tx.PasskeysForUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("%s: failed to list passkeys: %w", op, err)
		}

		parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(credential))
		if err != nil {
			log.Warn("failed to parse assertion", sl.Err(err))
			return ErrAuthenticationFailed
		}

		cred, err := p.validateLogin(newWebauthnUser(user, stored), sessionData, parsed)
		if err != nil {
			log.Warn("assertion rejected", sl.Err(err))
			return ErrAuthenticationFailed
		}

		if cred.Authenticator.CloneWarning {
			log.Warn("sign count did not advance, possible cloned authenticator")
			return ErrAuthenticationFailed
		}

		if err := tx.UpdatePasskeySignCount(ctx, cred.ID, cred.Authenticator.SignCount); err != nil {
			return fmt.Errorf("%s: failed to update sign count: %w", op, err)
		}

		sess, err = p.issuer.Issue(ctx, tx, user)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownCredential), errors.Is(err, ErrAuthenticationFailed):
			return session.Session{}, err
		}

		log.Error("failed to authenticate with passkey", sl.Err(err))
		return session.Session{}, err
	}

	log.Info("passkey login", slog.String("uid", sess.UserID.String()))

	return sess, nil
}

// List returns the caller's registered passkeys.
func (p *Passkeys) List(ctx context.Context, userID uuid.UUID) ([]models.Passkey, error) {
	const op = "passkeys.List"

	stored, err := p.storage.PasskeysForUser(ctx, userID)
	if err != nil {
		p.log.Error("failed to list passkeys", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return stored, nil
}

// Delete removes one of the caller's passkeys. A passkey owned by someone
// else reports not-found, same as a nonexistent id.
func (p *Passkeys) Delete(ctx context.Context, id, userID uuid.UUID) error {
	const op = "passkeys.Delete"

	if err := p.storage.DeletePasskey(ctx, id, userID); err != nil {
		if errors.Is(err, storage.ErrPasskeyNotFound) {
			return ErrPasskeyNotFound
		}

		p.log.Error("failed to delete passkey", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// rawCredentialID pulls the credential id out of the client's assertion
// before the full parse, mirroring the lookup order of the ceremony:
// identify the credential, then validate the assertion against it.
func rawCredentialID(credential []byte) ([]byte, error) {
	var payload struct {
		RawID protocol.URLEncodedBase64 `json:"rawId"`
		ID    protocol.URLEncodedBase64 `json:"id"`
	}

	if err := json.Unmarshal(credential, &payload); err != nil {
		return nil, err
	}

	id := payload.RawID
	if len(id) == 0 {
		id = payload.ID
	}

	if len(id) == 0 {
		return nil, errors.New("missing credential id")
	}

	return id, nil
}

// webauthnUser adapts our user model to the library's interface. The user
// handle is the user id string bytes, matching what registration options
// advertised.
type webauthnUser struct {
	id    []byte
	name  string
	creds []webauthn.Credential
}

func newWebauthnUser(user models.User, stored []models.Passkey) webauthnUser {
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, pk := range stored {
		creds = append(creds, webauthn.Credential{
			ID:        pk.CredentialID,
			PublicKey: pk.PublicKey,
			Authenticator: webauthn.Authenticator{
				SignCount: pk.SignCount,
			},
		})
	}

	return webauthnUser{
		id:    []byte(user.ID.String()),
		name:  user.Email,
		creds: creds,
	}
}

func (u webauthnUser) WebAuthnID() []byte                         { return u.id }
func (u webauthnUser) WebAuthnName() string                       { return u.name }
func (u webauthnUser) WebAuthnDisplayName() string                { return u.name }
func (u webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }
func (u webauthnUser) WebAuthnIcon() string                       { return "" }
