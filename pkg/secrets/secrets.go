package secrets

import (
	"crypto/rand"
	"encoding/base64"

	dErrors "hie-gateway/pkg/domain-errors"
)

// DefaultSize is the number of random bytes behind a generated secret.
const DefaultSize = 32

// Generate creates a random base64url secret of size bytes, suitable for the
// payload key, webhook signing secret or admin token.
func Generate(size int) (string, error) {
	if size < 16 {
		return "", dErrors.New(dErrors.CodeValidation, "secret must be at least 16 bytes")
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
