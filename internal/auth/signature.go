package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when timestamp is outside replay window.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
)

// DefaultReplayWindow is the default replay protection window for signed
// conversion triggers.
const DefaultReplayWindow = 5 * time.Minute

// GenerateSignature creates an HMAC-SHA256 signature for a conversion
// payload. The canonical string format is "{timestamp}.{payloadJSON}".
func GenerateSignature(secret string, timestamp int64, payloadJSON []byte) string {
	canonical := fmt.Sprintf("%d.%s", timestamp, string(payloadJSON))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature verifies a conversion trigger signature with replay
// protection.
func ValidateSignature(secret, signature string, timestamp int64, payloadJSON []byte, replayWindow time.Duration) error {
	now := time.Now().Unix()
	if abs(now-timestamp) > int64(replayWindow.Seconds()) {
		return ErrReplayWindowExceeded
	}

	expected := GenerateSignature(secret, timestamp, payloadJSON)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
