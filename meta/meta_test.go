package meta

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWatermarkAbsentUntilSet(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Watermark()
	require.NoError(t, err)
	assert.False(t, ok, "a fresh meta store has no watermark, signalling bootstrap")
}

func TestWatermarkRoundTrip(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SetWatermark(at))

	got, ok, err := s.Watermark()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestLastSettingsUpdateAbsentUntilSet(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.LastSettingsUpdate()
	require.NoError(t, err)
	assert.False(t, ok, "a fresh meta store has no settings-mutation timestamp")
}

func TestLastSettingsUpdateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, s.SetLastSettingsUpdate(at))

	got, ok, err := s.LastSettingsUpdate()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestLastSettingsUpdateIsIndependentOfWatermark(t *testing.T) {
	s := openTestStore(t)

	watermark := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	settingsAt := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetWatermark(watermark))
	require.NoError(t, s.SetLastSettingsUpdate(settingsAt))

	gotWatermark, _, err := s.Watermark()
	require.NoError(t, err)
	gotSettings, _, err := s.LastSettingsUpdate()
	require.NoError(t, err)

	assert.True(t, gotWatermark.Equal(watermark))
	assert.True(t, gotSettings.Equal(settingsAt))
}

func TestSettingsCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.StoreSettings("stopwords", []byte(`["for"]`)))

	data, ok, err := s.LoadSettings("stopwords")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["for"]`, string(data))

	require.NoError(t, s.RemoveSettings("stopwords"))
	_, ok, err = s.LoadSettings("stopwords")
	require.NoError(t, err)
	assert.False(t, ok)
}
