package state

var vaultRecordPrefix = []byte("vault/record/")

func vaultRecordKey(id [32]byte) []byte {
	buf := make([]byte, len(vaultRecordPrefix)+len(id))
	copy(buf, vaultRecordPrefix)
	copy(buf[len(vaultRecordPrefix):], id[:])
	return buf
}
