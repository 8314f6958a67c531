// internal/cache/key.go
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DeriveKey builds the deterministic cache key for one call. Parameters are
// JSON-serialized, and since object keys marshal in sorted order, logically
// identical calls map to the same key regardless of how the params were built.
func DeriveKey(method string, params interface{}) (string, error) {
	blob, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("serialize params for %s: %w", method, err)
	}

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(blob)
	return hex.EncodeToString(h.Sum(nil)), nil
}
