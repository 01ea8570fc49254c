package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func writeGzip(t *testing.T, path string, contents []byte) {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(contents)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestStaticHandler_precompressed(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("console.log('hello');\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test-ABC.js"), contents, 0o644))
	writeGzip(t, filepath.Join(dir, "test-ABC.js.gz"), contents)

	handler := StaticHandler(dir)

	t.Run("gzip accepted", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/test-ABC.js", nil)
		r.Header.Set("Accept-Encoding", "br, gzip")

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		require.Contains(t, w.Header().Get("Content-Type"), "javascript")

		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.Equal(t, contents, body)
	})

	t.Run("identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/test-ABC.js", nil)

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, contents, w.Body.Bytes())
	})

	t.Run("gzip refused with q=0", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/test-ABC.js", nil)
		r.Header.Set("Accept-Encoding", "gzip;q=0")

		handler.ServeHTTP(w, r)

		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, contents, w.Body.Bytes())
	})

	t.Run("missing file", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/nope.js", nil)
		r.Header.Set("Accept-Encoding", "gzip")

		handler.ServeHTTP(w, r)

		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAcceptedEncodings(t *testing.T) {
	accepted := acceptedEncodings("gzip;q=0.8, ZSTD , br;q=0, ")

	require.True(t, accepted["gzip"])
	require.True(t, accepted["zstd"])
	require.False(t, accepted["br"])
	require.Len(t, accepted, 2)
}
