package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/Surgeonito/fabrica-collaborative-editing/internal/domain"
)

// Field returns the hex BLAKE2b-256 digest of a field value. Clients hash
// their local copy the same way, so only digests travel in presence reports.
func Field(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func Fields(fields map[domain.FieldKey]string) map[domain.FieldKey]string {
	out := make(map[domain.FieldKey]string, len(fields))
	for k, v := range fields {
		out[k] = Field(v)
	}
	return out
}
