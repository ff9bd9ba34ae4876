package passkeymanage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/mbt1/LanguageLearnApp/internal/http_server/middleware/authn"
	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
	sl "github.com/mbt1/LanguageLearnApp/internal/lib/logger"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
)

type ListItem struct {
	ID        uuid.UUID `json:"id"`
	Name      *string   `json:"name"`
	CreatedAt string    `json:"created_at"`
}

type ListResponse struct {
	resp.Response
	Passkeys []ListItem `json:"passkeys"`
}

// List returns the caller's registered passkeys.
func List(
	log *slog.Logger,
	passkeyService *passkeys.Passkeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeymanage.List"

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

		stored, err := passkeyService.List(ctx, identity.UserID)
		if err != nil {
			log.Error("failed to list passkeys", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		items := make([]ListItem, 0, len(stored))
		for _, pk := range stored {
			items = append(items, ListItem{
				ID:        pk.ID,
				Name:      pk.Name,
				CreatedAt: pk.CreatedAt.Format(time.RFC3339),
			})
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Passkeys: items,
		})
	}
}

// Delete removes one of the caller's passkeys. Someone else's passkey and a
// nonexistent id produce the same 404.
func Delete(
	log *slog.Logger,
	passkeyService *passkeys.Passkeys,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.passkeymanage.Delete"

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

		passkeyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("Passkey not found"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := passkeyService.Delete(ctx, passkeyID, identity.UserID); err != nil {
			if errors.Is(err, passkeys.ErrPasskeyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Passkey not found"))

				return
			}

			log.Error("failed to delete passkey", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("passkey deleted")

		render.NoContent(w, r)
	}
}
