package protocol

// PutString writes s into dst as a fixed 64-byte field, truncating long
// values and padding short ones with spaces. s must already be code-page text.
func PutString(dst []byte, s string) {
	n := copy(dst[:StringSize], s)
	for i := n; i < StringSize; i++ {
		dst[i] = ' '
	}
}

// GetString reads a fixed 64-byte field, dropping the space padding.
func GetString(src []byte) string {
	b := src[:StringSize]
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
