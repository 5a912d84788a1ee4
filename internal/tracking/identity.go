package tracking

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// sessionIDLength is the hex length of generated session ids.
const sessionIDLength = 32

// NewSessionID generates a link-scoped session id by hashing the link id
// together with time, randomness and request identity. Scoping to the link
// means the same browser visiting two different links gets two different
// session ids, so sessions never collide across links.
func NewSessionID(linkID, ip, userAgent string) string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%x|%s|%s", linkID, time.Now().UnixNano(), nonce, ip, userAgent)

	return hex.EncodeToString(h.Sum(nil))[:sessionIDLength]
}

// Fingerprint hashes coarse request headers into a weak, shared-across-users
// device identity signal.
func Fingerprint(userAgent, acceptLanguage, acceptEncoding string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", userAgent, acceptLanguage, acceptEncoding)
	return hex.EncodeToString(h.Sum(nil))[:sessionIDLength]
}

// HashIP hashes an IP address for use as a signal-store key. Raw addresses
// never become keys.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:sessionIDLength]
}

// HashEmail normalizes and hashes a purchaser email.
func HashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])[:sessionIDLength]
}
