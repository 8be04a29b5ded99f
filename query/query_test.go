package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefAddressRoundTrip(t *testing.T) {
	addr := RefAddress{SegmentOrdinal: 7, DocOrdinal: 42}
	token := addr.Encode()

	got, err := ParseRefAddress(token)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestParseRefAddressRejectsMalformed(t *testing.T) {
	_, err := ParseRefAddress("not-a-valid-token-at-all-zz")
	assert.Error(t, err)
}

func TestPayloadValidate(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"normal requires query", Payload{Mode: ModeNormal}, true},
		{"normal with query ok", Payload{Mode: ModeNormal, Query: "rust"}, false},
		{"fuzzy requires query", Payload{Mode: ModeFuzzy}, true},
		{"more_like_this requires ref", Payload{Mode: ModeMoreLikeThis}, true},
		{"more_like_this with ref ok", Payload{Mode: ModeMoreLikeThis, RefDocument: &RefAddress{}}, false},
		{"unknown mode", Payload{Mode: Mode(99)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
