package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for a future change of the hashing scheme.
const (
	domainClaim    = "assay/claim/v1"
	domainEvidence = "assay/evidence/v1"
	domainSource   = "assay/source/v1"
)

// contentHash returns the first n hex characters of SHA256(domain 0x00 parts...).
// Parts are joined with 0x1f so that ("ab","c") and ("a","bc") never collide.
func contentHash(domain string, n int, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.Join(parts, "\x1f")))
	sum := hex.EncodeToString(h.Sum(nil))
	if n > 0 && n < len(sum) {
		return sum[:n]
	}
	return sum
}
