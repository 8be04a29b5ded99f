package schema

import (
	"crypto/sha256"
	"encoding/json"
)

type fieldFingerprint struct {
	Name      string
	Type      FieldType
	Indexed   bool
	Stored    bool
	Tokenized bool
	Fast      bool
	Boost     float64
	FastFuzzy bool
}

// Fingerprint produces a stable digest of s suitable for detecting drift
// between a declared schema and the schema an on-disk index was created
// with (§3 Schema invariant).
func Fingerprint(s *Schema) ([]byte, error) {
	fps := make([]fieldFingerprint, len(s.fields))
	for i, f := range s.fields {
		fps[i] = fieldFingerprint{
			Name: f.Name, Type: f.Type, Indexed: f.Indexed,
			Stored: f.Stored, Tokenized: f.Tokenized, Fast: f.Fast,
			Boost: f.Boost, FastFuzzy: f.FastFuzzy,
		}
	}

	data, err := json.Marshal(struct {
		PrimaryKey string
		Fields     []fieldFingerprint
	}{s.primaryKey, fps})
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	return sum[:], nil
}
