package model

import (
	"bytes"
	"encoding/json"
	"maps"
)

// CredentialBlob is the opaque authentication material for a paired device.
// Each entry is named (for example "creds" or a key-file name) and holds raw
// JSON the service never inspects.
type CredentialBlob map[string]json.RawMessage

// IsEmpty reports whether the blob holds no entries, i.e. the device has never paired.
func (b CredentialBlob) IsEmpty() bool {
	return len(b) == 0
}

// Merge returns a copy of b with update applied. An entry whose value is the
// JSON literal null is removed.
func (b CredentialBlob) Merge(update CredentialBlob) CredentialBlob {
	merged := make(CredentialBlob, len(b)+len(update))
	maps.Copy(merged, b)
	for name, value := range update {
		if isJSONNull(value) {
			delete(merged, name)
			continue
		}
		merged[name] = value
	}
	return merged
}

func isJSONNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
