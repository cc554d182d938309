package middleware

import (
	"net/http"

	"github.com/proptly/mediaflow/internal/config"
	"github.com/proptly/mediaflow/internal/ctxkeys"
)

// Config adds the application config to every request context
func Config(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ctxkeys.WithConfig(r.Context(), cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
