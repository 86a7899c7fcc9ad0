package clientstore

import (
	"encoding/binary"
	"strings"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketClients = []byte("clients")
)

// Meta key constants.
var (
	keySchema = []byte("schema")
)

const schemaVersion = 1

// playerKey is the case-folded player name; Classic names are unique
// regardless of case.
func playerKey(name string) []byte {
	return []byte(strings.ToLower(name))
}

// intToKey converts an int to an 8-byte big-endian value.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian value back to an int.
func keyToInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(b))
}
