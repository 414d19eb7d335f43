package middleware

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing instruments each request with an otelhttp span named after
// chi's matched route pattern. The pattern keeps span cardinality bounded:
// "POST /api/v1/purchases/{sessionID}/attempt" rather than one name per
// session token.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operation := r.Method + " " + r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				operation = fmt.Sprintf("%s %s", r.Method, rctx.RoutePattern())
			}
			otelhttp.NewHandler(next, operation).ServeHTTP(w, r)
		})
	}
}
