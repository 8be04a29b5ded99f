// Package auth is the peripheral auth surface (§4.7): token issuance and
// revocation, a permissions bitmask, and the path→permission derivation
// table the (unimplemented) REST middleware would consult.
//
// Grounded on original_source/lnx-server/src/routes/auth.rs's
// TokenPayload/permissions bitmask and its commented-out
// check_permissions path table.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/store"
)

// Permission is a bitmask of operations a token is allowed to perform
// (§4.7).
type Permission uint32

const (
	PermModifyAuth Permission = 1 << iota
	PermModifyEngine
	PermSearchIndex
	PermModifyStopWords
	PermModifyDocuments
)

// Has reports whether p includes required.
func (p Permission) Has(required Permission) bool {
	return p&required == required
}

// Token is an issued credential (§3 Data model: `(token_string,
// permissions_bitmask, optional_user, optional_description,
// optional_allowed_indexes)`).
type Token struct {
	ID          uuid.UUID
	Description string
	Permissions Permission
	Revoked     bool
	IssuedAt    time.Time

	// User optionally identifies who the token was issued to/for.
	User string
	// AllowedIndexes optionally restricts the token to a set of index
	// names; empty means unrestricted (every index).
	AllowedIndexes []string
}

// AllowsIndex reports whether t may be used against indexName, per the
// optional_allowed_indexes restriction (empty/nil means unrestricted).
func (t *Token) AllowsIndex(indexName string) bool {
	if len(t.AllowedIndexes) == 0 {
		return true
	}
	for _, name := range t.AllowedIndexes {
		if name == indexName {
			return true
		}
	}
	return false
}

// Manager issues, revokes, and looks up tokens, persisting every
// mutation through the storage collaborator (§4.7: "Token mutations are
// persisted through the storage collaborator after each change").
//
// Tokens are never deleted outright: Open Question (a) resolves the
// source's conflation of revocation with deletion in favor of a Revoked
// flag, preserving audit history.
type Manager struct {
	backend store.Store
}

func NewManager(backend store.Store) *Manager {
	return &Manager{backend: backend}
}

const settingsKeyPrefix = "auth/token/"

// Issue creates and persists a new token with the given permissions.
// user and allowedIndexes are optional (§3 Data model); pass "" and nil
// when unused.
func (m *Manager) Issue(ctx context.Context, description string, perms Permission, user string, allowedIndexes []string) (*Token, error) {
	t := &Token{
		ID:             uuid.New(),
		Description:    description,
		Permissions:    perms,
		IssuedAt:       time.Now().UTC(),
		User:           user,
		AllowedIndexes: append([]string(nil), allowedIndexes...),
	}
	if err := m.persist(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Revoke flips a token's Revoked flag and persists the change; it does
// not remove the token's audit record.
func (m *Manager) Revoke(ctx context.Context, id uuid.UUID) error {
	t, ok, err := m.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return kinderror.New(kinderror.NotFound, errTokenNotFound(id))
	}
	t.Revoked = true
	return m.persist(ctx, t)
}

// Lookup resolves a raw Authorization header value to its Token. A
// revoked or unknown token is PermissionDenied, matching the middleware
// contract in §4.7.
func (m *Manager) Lookup(ctx context.Context, rawToken string) (*Token, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawToken))
	if err != nil {
		return nil, kinderror.New(kinderror.PermissionDenied, err)
	}

	t, ok, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || t.Revoked {
		return nil, kinderror.New(kinderror.PermissionDenied, errTokenNotFound(id))
	}
	return t, nil
}

func (m *Manager) persist(ctx context.Context, t *Token) error {
	data, err := encodeToken(t)
	if err != nil {
		return kinderror.Wrap(kinderror.Internal, err, "auth: encode token")
	}
	if err := m.backend.UpdateSettings(ctx, settingsKeyPrefix+t.ID.String(), data); err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "auth: persist token")
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, id uuid.UUID) (*Token, bool, error) {
	data, ok, err := m.backend.LoadSettings(ctx, settingsKeyPrefix+id.String())
	if err != nil {
		return nil, false, kinderror.Wrap(kinderror.BackendError, err, "auth: load token")
	}
	if !ok {
		return nil, false, nil
	}
	t, err := decodeToken(data)
	if err != nil {
		return nil, false, kinderror.Wrap(kinderror.Internal, err, "auth: decode token")
	}
	return t, true, nil
}

type tokenNotFoundErr struct{ id uuid.UUID }

func (e tokenNotFoundErr) Error() string { return "auth: token " + e.id.String() + " not found" }

func errTokenNotFound(id uuid.UUID) error { return tokenNotFoundErr{id: id} }
