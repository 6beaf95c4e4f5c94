package provision

import (
	"crypto/rand"
	"encoding/hex"
)

// NewWebhookSecret returns a 64-hex-character secret (256 bits of entropy)
// suitable for webhook signature verification.
func NewWebhookSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// provisioning secrets without it is not an option.
		panic("webhook secret generation: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
