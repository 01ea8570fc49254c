package assets

import (
	"encoding/binary"
	"path"

	"github.com/minio/crc64nvme"
	"github.com/mr-tron/base58"
)

// contentHash is a short, stable fingerprint of contents for cache busting
func contentHash(contents []byte) string {
	h := crc64nvme.New()
	_, _ = h.Write(contents)

	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], h.Sum64())
	return base58.Encode(sum[:])
}

// hashedName turns "utilities.css" into "utilities-<hash>.css"
func hashedName(name string, contents []byte) string {
	ext := path.Ext(name)
	stem := name[:len(name)-len(ext)]
	return stem + "-" + contentHash(contents) + ext
}
