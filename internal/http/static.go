package http

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// encodings in order of preference, paired with the side file suffix written at build time
var encodings = []struct {
	name   string
	suffix string
}{
	{name: "zstd", suffix: ".zst"},
	{name: "gzip", suffix: ".gz"},
}

// StaticHandler serves files from dir, answering with a precompressed variant when the client accepts it
func StaticHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.GetMetrics().RequestsTotal.Add(r.Context(), 1)

		name := path.Clean("/" + r.URL.Path)
		if strings.HasSuffix(name, "/") || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			files.ServeHTTP(w, r)
			return
		}

		accepted := acceptedEncodings(r.Header.Get("Accept-Encoding"))
		w.Header().Add("Vary", "Accept-Encoding")

		for _, enc := range encodings {
			if !accepted[enc.name] {
				continue
			}

			f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)+enc.suffix))
			if err != nil {
				continue
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil || info.IsDir() {
				continue
			}

			if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
				w.Header().Set("Content-Type", ctype)
			}
			w.Header().Set("Content-Encoding", enc.name)
			telemetry.GetMetrics().PrecompressedHits.Add(r.Context(), 1)
			http.ServeContent(w, r, name, info.ModTime(), f)
			return
		}

		files.ServeHTTP(w, r)
	})
}

// acceptedEncodings parses Accept-Encoding, dropping codings with q=0
func acceptedEncodings(header string) map[string]bool {
	accepted := map[string]bool{}
	for part := range strings.SplitSeq(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding == "" {
			continue
		}

		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		accepted[coding] = true
	}
	return accepted
}
