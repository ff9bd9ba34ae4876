package httpserver

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mbt1/LanguageLearnApp/internal/auth"
	"github.com/mbt1/LanguageLearnApp/internal/config"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/login"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/logout"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/passkeylogin"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/passkeymanage"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/passkeyregister"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/refresh"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/register"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/resend"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/handlers/verify"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/middleware/authn"
	"github.com/mbt1/LanguageLearnApp/internal/http_server/middleware/csrf"
	"github.com/mbt1/LanguageLearnApp/internal/passkeys"
)

// NewRouter mounts the auth surface under /v1/auth. The CSRF origin check
// wraps the whole group because every cookie-bearing endpoint lives here;
// bearer-only endpoints additionally go through the authn gate.
func NewRouter(
	log *slog.Logger,
	cfg *config.Config,
	authService *auth.Auth,
	passkeyService *passkeys.Passkeys,
) *chi.Mux {
	validate := validator.New()
	refreshTTL := cfg.Tokens.RefreshTokenTTL

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(csrf.New(log, cfg.WebAuthn.AllowedOrigins))

		r.Post("/register", register.New(log, validate, authService, refreshTTL))
		r.Post("/login", login.New(log, validate, authService, refreshTTL))
		r.Post("/refresh", refresh.New(log, authService, refreshTTL))
		r.Post("/logout", logout.New(log, authService))
		r.Get("/verify-email", verify.New(log, authService))

		r.Post("/passkeys/authenticate/options", passkeylogin.Options(log, validate, passkeyService))
		r.Post("/passkeys/authenticate/verify", passkeylogin.Verify(log, validate, passkeyService, refreshTTL))

		r.Group(func(r chi.Router) {
			r.Use(authn.New(log, cfg.Tokens.Secret, cfg.Tokens.Algorithm))

			r.Post("/resend-verification", resend.New(log, authService))
			r.Post("/passkeys/register/options", passkeyregister.Options(log, passkeyService))
			r.Post("/passkeys/register/verify", passkeyregister.Verify(log, passkeyService))
			r.Get("/passkeys", passkeymanage.List(log, passkeyService))
			r.Delete("/passkeys/{id}", passkeymanage.Delete(log, passkeyService))
		})
	})

	return r
}
