// Package query is the Query Builder (§4.3): it translates a
// user-supplied QueryPayload into a bleve search/query.Query, handling
// the Normal, Fuzzy, and MoreLikeThis modes, and the fast-fuzzy
// shadow-field switch-over (§4.4).
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
)

// Mode selects how Query is interpreted, per §4.3 Input.
type Mode int

const (
	ModeNormal Mode = iota
	ModeFuzzy
	ModeMoreLikeThis
)

func (m Mode) String() string {
	switch m {
	case ModeFuzzy:
		return "fuzzy"
	case ModeMoreLikeThis:
		return "more_like_this"
	default:
		return "normal"
	}
}

// RefAddress is the stable opaque handle to a previously-returned hit,
// encoding (segment_ordinal, doc_ordinal) (§4.2 Result shape). It is used
// both as a search result field and as MoreLikeThis's ref_document input.
type RefAddress struct {
	SegmentOrdinal uint32
	DocOrdinal     uint32
}

// Encode renders the address as the opaque token callers pass around.
func (r RefAddress) Encode() string {
	return fmt.Sprintf("%x-%x", r.SegmentOrdinal, r.DocOrdinal)
}

// ParseRefAddress is the inverse of Encode.
func ParseRefAddress(token string) (RefAddress, error) {
	segStr, docStr, ok := strings.Cut(token, "-")
	if !ok {
		return RefAddress{}, fmt.Errorf("query: malformed ref_address %q", token)
	}
	seg, err := strconv.ParseUint(segStr, 16, 32)
	if err != nil {
		return RefAddress{}, fmt.Errorf("query: malformed ref_address %q: %w", token, err)
	}
	doc, err := strconv.ParseUint(docStr, 16, 32)
	if err != nil {
		return RefAddress{}, fmt.Errorf("query: malformed ref_address %q: %w", token, err)
	}
	return RefAddress{SegmentOrdinal: uint32(seg), DocOrdinal: uint32(doc)}, nil
}

// Payload is QueryPayload (§4.3 Input).
type Payload struct {
	Mode        Mode
	Query       string
	RefDocument *RefAddress
	Limit       int
	Offset      int
	OrderBy     string
}

// Validate enforces §4.3 Validation, returning kinderror.InvalidQuery on
// violation.
func (p Payload) Validate() error {
	switch p.Mode {
	case ModeNormal, ModeFuzzy:
		if strings.TrimSpace(p.Query) == "" {
			return kinderror.New(kinderror.InvalidQuery, fmt.Errorf("query: mode %s requires a non-empty query", p.Mode))
		}
	case ModeMoreLikeThis:
		if p.RefDocument == nil {
			return kinderror.New(kinderror.InvalidQuery, fmt.Errorf("query: mode more_like_this requires ref_document"))
		}
	default:
		return kinderror.New(kinderror.InvalidQuery, fmt.Errorf("query: unknown mode %d", p.Mode))
	}
	return nil
}
