package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// loggedUser is a slot the logger plants on the context before auth
// runs. RequireAuth fills it in, so the completion log can name the
// user even though the logger wraps the auth middleware.
type loggedUser struct {
	id string
}

const loggedUserKey contextKey = "loggedUser"

func setLoggedUser(ctx context.Context, id string) {
	if slot, ok := ctx.Value(loggedUserKey).(*loggedUser); ok {
		slot.id = id
	}
}

// Logger returns a request logging middleware using zerolog.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			user := &loggedUser{}
			r = r.WithContext(context.WithValue(r.Context(), loggedUserKey, user))

			defer func() {
				evt := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if user.id != "" {
					evt = evt.Str("user", user.id)
				}
				evt.Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
