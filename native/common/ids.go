package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const idHexLength = 64

// ParseID normalises and validates a 32-byte identifier expressed as a hex
// string with an optional 0x prefix.
func ParseID(ref string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return id, fmt.Errorf("identifier required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != idHexLength {
		return id, fmt.Errorf("identifier must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("decode identifier: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// FormatID renders an identifier as 0x-prefixed hex.
func FormatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
