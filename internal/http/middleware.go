package http

import (
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/felixge/httpsnoop"
)

// ExtractClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For header first (for proxied requests), then X-Real-IP, finally RemoteAddr.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (comma-separated)
		if before, _, ok := strings.Cut(xff, ","); ok {
			return before
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr, stripping port
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// hashSuffix matches the "-<hash>" esbuild and the emitted file writer append before the extension
var hashSuffix = regexp.MustCompile(`-([A-Z2-7]{8}|[1-9A-HJ-NP-Za-km-z]{8,11})$`)

// CacheControl marks successful responses for hashed files as immutable, everything else is revalidated
func CacheControl(manifestName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			immutable := hashed(r.URL.Path) && path.Base(r.URL.Path) != manifestName

			var once sync.Once
			decide := func(code int) {
				once.Do(func() {
					if immutable && (code == http.StatusOK || code == http.StatusNotModified || code == http.StatusPartialContent) {
						w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
					} else {
						w.Header().Set("Cache-Control", "no-cache")
					}
				})
			}

			wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
				WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
					return func(code int) {
						decide(code)
						next(code)
					}
				},
				Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(b []byte) (int, error) {
						decide(http.StatusOK)
						return next(b)
					}
				},
				ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						decide(http.StatusOK)
						return next(src)
					}
				},
			})
			next.ServeHTTP(wrapped, r)
		})
	}
}

// hashed reports whether the file name in p carries a content hash
func hashed(p string) bool {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	m := hashSuffix.FindStringSubmatch(stem)
	if m == nil {
		return false
	}
	// an all lowercase segment is a word, not a hash
	return strings.ContainsFunc(m[1], func(r rune) bool { return !unicode.IsLower(r) })
}
