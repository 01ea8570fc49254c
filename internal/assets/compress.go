package assets

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var compressible = map[string]bool{
	".js":   true,
	".mjs":  true,
	".css":  true,
	".map":  true,
	".svg":  true,
	".json": true,
	".html": true,
	".txt":  true,
}

// precompress writes path.gz and/or path.zst next to text outputs so they can be served as is
func precompress(path string, contents []byte, encodings []string) error {
	if !compressible[filepath.Ext(path)] {
		return nil
	}

	for _, enc := range encodings {
		var err error
		switch enc {
		case EncodingGzip:
			err = writeCompressed(path+".gz", contents, func(w io.Writer) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(w, gzip.BestCompression)
			})
		case EncodingZstd:
			err = writeCompressed(path+".zst", contents, func(w io.Writer) (io.WriteCloser, error) {
				return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
			})
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func writeCompressed(path string, contents []byte, newWriter func(io.Writer) (io.WriteCloser, error)) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	enc, err := newWriter(dst)
	if err != nil {
		return err
	}

	if _, err := enc.Write(contents); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	return dst.Close()
}
