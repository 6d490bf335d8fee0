package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery converts a handler panic into a plain-text 500 response.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := wrap(w)

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("panic recovered",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			// Headers already sent; the client sees a truncated body.
			if wrapped.wroteHeader {
				return
			}
			wrapped.Header().Set("Content-Type", "text/plain; charset=utf-8")
			wrapped.WriteHeader(http.StatusInternalServerError)
			wrapped.Write([]byte("internal error\n"))
		}()

		next.ServeHTTP(wrapped, r)
	})
}
