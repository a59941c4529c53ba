package objects

// IndexBytes returns the shortest big endian encoding of index. It is used
// as CKA_ID, so index 0 is a single zero byte.
func IndexBytes(index uint) []byte {
	n := 1
	for v := index >> 8; v > 0; v >>= 8 {
		n++
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(index)
		index >>= 8
	}
	return out
}
