package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
)

type Response struct {
	resp.Response
	Message string `json:"message"`
}

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := r.URL.Query().Get("token")
		if token == "" {
			log.Warn("missing verification token")

			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("Invalid verification token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := authService.VerifyEmail(ctx, token); err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidVerificationToken):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Invalid verification token"))

			case errors.Is(err, auth.ErrVerificationTokenExpired):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Verification token expired"))

			default:
				log.Error("failed to verify email", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("email verified")

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "Email verified successfully",
		})
	}
}
