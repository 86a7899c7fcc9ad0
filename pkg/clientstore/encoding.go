package clientstore

import (
	"bytes"
	"encoding/gob"
)

// encodeRecord serializes a Record to bytes using gob.
func encodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecord deserializes bytes back into a Record.
func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
