package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	"github.com/mbt1/LanguageLearnApp/internal/lib/cookies"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
)

func New(
	log *slog.Logger,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		// Revocation is best effort; the cookie is cleared no matter what.
		if rawToken, ok := cookies.Refresh(r); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := authService.Logout(ctx, rawToken); err != nil {
				log.Error("failed to revoke refresh token", sl.Err(err))
			}
		}

		cookies.ClearRefresh(w)

		render.NoContent(w, r)
	}
}
