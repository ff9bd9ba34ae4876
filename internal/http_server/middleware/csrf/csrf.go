package csrf

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	resp "github.com/mbt1/LanguageLearnApp/internal/lib/api/response"
)

// New returns middleware that rejects state-changing requests whose Origin
// header is present but not allow-listed. A missing Origin passes, since
// same-origin and non-browser clients often omit the header.
func New(log *slog.Logger, allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.csrf.New"

			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				log.Warn("rejected cross-origin request",
					slog.String("op", op),
					slog.String("origin", origin),
				)

				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("CSRF validation failed"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}

	return false
}
