// Package gravatar derives deterministic avatar URLs from email addresses
// following the gravatar.com convention: the md5 hex of the trimmed,
// lowercased address, with a 404 fallback for unregistered emails.
package gravatar

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const baseURL = "https://www.gravatar.com/avatar/"

// URL returns the gravatar URL for email, 200px, PG-rated, 404 on miss.
func URL(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return baseURL + hex.EncodeToString(sum[:]) + "?d=404&r=pg&s=200"
}
