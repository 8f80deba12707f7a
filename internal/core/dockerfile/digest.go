package dockerfile

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest returns a short content hash identifying a definition version.
func Digest(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
