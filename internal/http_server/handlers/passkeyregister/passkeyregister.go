package passkeyregister

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mbt1/LanguageLearnApp/internal/http_server/middleware/authn"
	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
)

type OptionsResponse struct {
	resp.Response
	Options json.RawMessage `json:"options"`
}

type VerifyRequest struct {
	Credential json.RawMessage `json:"credential" validate:"required"`
	Name       *string         `json:"name,omitempty"`
}

type VerifyResponse struct {
	resp.Response
	Message string `json:"message"`
}

// Options starts the registration ceremony for the authenticated caller.
func Options(
	log *slog.Logger,
	passkeyService *passkeys.Passkeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeyregister.Options"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("not authenticated"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		options, err := passkeyService.RegistrationOptions(ctx, identity.UserID, identity.Email)
		if err != nil {
			log.Error("failed to generate registration options", sl.Err(err))

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

// Verify finishes the registration ceremony and stores the new credential.
func Verify(
	log *slog.Logger,
	passkeyService *passkeys.Passkeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeyregister.Verify"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("not authenticated"))

			return
		}

		var req VerifyRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		err := passkeyService.RegistrationVerify(ctx, identity.UserID, identity.Email, req.Credential, req.Name)
		if err != nil {
			switch {
			case errors.Is(err, passkeys.ErrNoPendingChallenge):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("No pending registration challenge"))

			case errors.Is(err, passkeys.ErrRegistrationFailed):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Registration verification failed"))

			default:
				log.Error("failed to verify registration", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("passkey registered")

		render.JSON(w, r, VerifyResponse{
			Response: resp.OK(),
			Message:  "Passkey registered successfully",
		})
	}
}
