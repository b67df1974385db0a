package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Sum returns the hex-encoded SHA-256 digest of data. It is stable across
// processes and used as the document ETag and index checksum.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint is a fast in-memory content hash used to recognise our own
// writes when the watcher echoes them back.
func Fingerprint(text string) uint64 {
	return xxhash.Sum64String(text)
}
