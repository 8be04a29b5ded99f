package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// wireToken is the JSON-on-the-wire shape persisted via
// store.Store.UpdateSettings; kept separate from Token so field renames
// on the public type don't silently change the storage format.
type wireToken struct {
	ID             uuid.UUID `json:"id"`
	Description    string    `json:"description"`
	Permissions    uint32    `json:"permissions"`
	Revoked        bool      `json:"revoked"`
	IssuedAt       time.Time `json:"issued_at"`
	User           string    `json:"user,omitempty"`
	AllowedIndexes []string  `json:"allowed_indexes,omitempty"`
}

func encodeToken(t *Token) ([]byte, error) {
	return json.Marshal(wireToken{
		ID:             t.ID,
		Description:    t.Description,
		Permissions:    uint32(t.Permissions),
		Revoked:        t.Revoked,
		IssuedAt:       t.IssuedAt,
		User:           t.User,
		AllowedIndexes: t.AllowedIndexes,
	})
}

func decodeToken(data []byte) (*Token, error) {
	var w wireToken
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &Token{
		ID:             w.ID,
		Description:    w.Description,
		Permissions:    Permission(w.Permissions),
		Revoked:        w.Revoked,
		IssuedAt:       w.IssuedAt,
		User:           w.User,
		AllowedIndexes: w.AllowedIndexes,
	}, nil
}
