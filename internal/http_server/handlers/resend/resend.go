package resend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/middleware/authn"
	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
)

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resend.New"

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

		err := authService.ResendVerification(ctx, identity.UserID, identity.Email, identity.EmailVerified)
		if err != nil {
			if errors.Is(err, auth.ErrAlreadyVerified) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Email already verified"))

				return
			}

			log.Error("failed to resend verification", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("verification email resent")

		render.NoContent(w, r)
	}
}
