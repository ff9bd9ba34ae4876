package refresh

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
	"github.com/mbt1/LanguageLearnApp/internal/lib/cookies"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
)

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
}

func New(
	log *slog.Logger,
	authService *auth.Auth,
	refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		rawToken, ok := cookies.Refresh(r)
		if !ok {
			log.Info("refresh without cookie")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("No refresh token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		sess, err := authService.Refresh(ctx, rawToken)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidRefreshToken):
				cookies.ClearRefresh(w)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid refresh token"))

			case errors.Is(err, auth.ErrRefreshTokenExpired):
				cookies.ClearRefresh(w)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Refresh token expired"))

			case errors.Is(err, auth.ErrUserNotFound):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("User not found"))

			default:
				log.Error("failed to refresh session", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Session refreshed")

		cookies.SetRefresh(w, sess.RefreshToken, refreshTTL)

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: sess.AccessToken,
		})
	}
}
