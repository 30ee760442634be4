package monitor

import (
	"crypto/sha256"
	"encoding/hex"
)

var sensitiveFields = []string{"ip", "userAgent", "username", "email", "token", "password"}

func hashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// Anonymize returns a copy of details with sensitive fields replaced by
// their SHA-256 digest.
func Anonymize(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = v
	}
	for _, f := range sensitiveFields {
		if v, ok := out[f]; ok {
			out[f] = hashValue(v)
		}
	}
	return out
}
