package images

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// checksumFile computes the SHA-256 hex digest of the file at path, the
// `checksum` field the Store records once an image reaches READY (spec.md
// §3, §4.2 "computes SHA-256").
func checksumFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is an internally-controlled image-root location
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
