package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// QuestionFingerprint identifies a question within a tenant independent of
// casing and surrounding whitespace.
func QuestionFingerprint(question, organizationID string) string {
	sum := sha256.Sum256([]byte(organizationID + "\x00" + strings.ToLower(strings.TrimSpace(question))))
	return hex.EncodeToString(sum[:])
}
