package passkeylogin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
	"github.com/mbt1/LanguageLearnApp/internal/lib/cookies"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
)

type OptionsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type OptionsResponse struct {
	resp.Response
	Options json.RawMessage `json:"options"`
}

type VerifyRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Credential json.RawMessage `json:"credential" validate:"required"`
}

type VerifyResponse struct {
	resp.Response
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	AccessToken   string    `json:"access_token"`
}

// Options starts the authentication ceremony. Public endpoint; unknown
// emails get the same answer as emails without passkeys.
func Options(
	log *slog.Logger,
	validate *validator.Validate,
	passkeyService *passkeys.Passkeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeylogin.Options"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req OptionsRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		options, err := passkeyService.AuthenticationOptions(ctx, req.Email)
		if err != nil {
			if errors.Is(err, passkeys.ErrNoPasskeys) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("No passkeys registered for this email"))

				return
			}

			log.Error("failed to generate authentication options", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, OptionsResponse{
			Response: resp.OK(),
			Options:  options,
		})
	}
}

// Verify finishes the authentication ceremony and issues a session.
func Verify(
	log *slog.Logger,
	validate *validator.Validate,
	passkeyService *passkeys.Passkeys,
	refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeylogin.Verify"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req VerifyRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		sess, err := passkeyService.AuthenticationVerify(ctx, req.Email, req.Credential)
		if err != nil {
			switch {
			case errors.Is(err, passkeys.ErrNoPendingChallenge):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("No pending authentication challenge"))

			case errors.Is(err, passkeys.ErrUnknownCredential):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Unknown credential"))

			case errors.Is(err, passkeys.ErrAuthenticationFailed):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Authentication verification failed"))

			default:
				log.Error("failed to verify authentication", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("passkey login")

		cookies.SetRefresh(w, sess.RefreshToken, refreshTTL)

		render.JSON(w, r, VerifyResponse{
			Response:      resp.OK(),
			UserID:        sess.UserID,
			Email:         sess.Email,
			EmailVerified: sess.EmailVerified,
			AccessToken:   sess.AccessToken,
		})
	}
}
