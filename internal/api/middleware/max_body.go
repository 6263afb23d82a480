package middleware

import (
	"net/http"

	"github.com/quill-labs/quillai/internal/api"
)

// MaxBodyBytes caps request body size at limit bytes. Oversized declared
// lengths are rejected up front with a 413; bodies without a declared length
// are capped while reading via http.MaxBytesReader. A limit of zero or less
// disables the check.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength != -1 && r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
