package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pario-ai/benchrun/pkg/models"
)

// Fingerprint computes a SHA-256 key over the question text and its attached
// resource. Fields are length-prefixed so no two distinct pairs collide by
// concatenation. The question ID is not part of the key.
func Fingerprint(q models.Question) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s|%d:%s", len(q.Text), q.Text, len(q.FileName), q.FileName)
	return hex.EncodeToString(h.Sum(nil))
}
