package events

import (
	"encoding/hex"
	"strconv"
)

func hexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}
