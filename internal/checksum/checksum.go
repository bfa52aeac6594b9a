// Package checksum computes content digests for notes and rendered frames.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a quoted entity tag for data, short enough for HTTP headers.
func ETag(data []byte) string {
	return strconv.Quote(Sum(data)[:16])
}
