package meshstack

import (
	"encoding/hex"
	"errors"
	"strings"
)

// AddressHashLength is the length of a normalized address hash in hex chars.
const AddressHashLength = 64

// ErrInvalidAddressHash is returned when an address hash is not valid
// lowercase-normalizable hex of the expected length.
var ErrInvalidAddressHash = errors.New("invalid address hash")

// NormalizeAddressHash lowercases and validates an address hash. All caches
// keyed by address hash use the normalized form, making lookups
// case-insensitive.
func NormalizeAddressHash(hash string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(hash))
	if len(normalized) != AddressHashLength {
		return "", ErrInvalidAddressHash
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", ErrInvalidAddressHash
	}
	return normalized, nil
}
