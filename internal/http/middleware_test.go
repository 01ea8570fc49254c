package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		expected   string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.10:51234", expected: "192.0.2.10"},
		{name: "remote addr ipv6", remoteAddr: "[2001:db8::1]:51234", expected: "[2001:db8::1]"},
		{name: "first forwarded hop", forwarded: "203.0.113.1, 198.51.100.1", remoteAddr: "10.0.0.1:80", expected: "203.0.113.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/static/main-ABCD2345.js", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			require.Equal(t, tt.expected, ExtractClientIP(r))
		})
	}
}

func TestCacheControl(t *testing.T) {
	handler := CacheControl("manifest.json")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing-ABCD2345.js":
			http.NotFound(w, r)
		case "/cached-ABCD2345.js":
			w.WriteHeader(http.StatusNotModified)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "hashed entry",
			path:     "/test-ABCD2345.js",
			expected: "public, max-age=31536000, immutable",
		},
		{
			name:     "nested chunk",
			path:     "/chunks/shared-ABCD1234.js",
			expected: "public, max-age=31536000, immutable",
		},
		{
			name:     "emitted file",
			path:     "/utilities-8ejZjy58AjJ.css",
			expected: "public, max-age=31536000, immutable",
		},
		{
			name:     "not modified",
			path:     "/cached-ABCD2345.js",
			expected: "public, max-age=31536000, immutable",
		},
		{
			name:     "not found",
			path:     "/missing-ABCD2345.js",
			expected: "no-cache",
		},
		{
			name:     "unhashed",
			path:     "/robots.txt",
			expected: "no-cache",
		},
		{
			name:     "hyphenated word",
			path:     "/my-component.js",
			expected: "no-cache",
		},
		{
			name:     "manifest",
			path:     "/manifest.json",
			expected: "no-cache",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.expected, w.Header().Get("Cache-Control"))
		})
	}
}
