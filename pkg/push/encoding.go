package push

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// HexToBase64 converts a platform-native hex token to the normalized form
// stored in the token store.
func HexToBase64(token string) (string, error) {
	raw, err := hex.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode hex token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Base64ToHex converts a stored token back to the platform-native hex form
// used on the wire.
func Base64ToHex(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode base64 token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
