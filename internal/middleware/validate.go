package middleware

import (
	"mime"
	"net/http"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// RequireJSON rejects request bodies that are not JSON and caps their size.
func RequireJSON(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			sugar.Debugw("wrong content type", "content_type", r.Header.Get("Content-Type"))
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "request body must be application/json")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		h.ServeHTTP(w, r)
	})
}
