package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsArtistEmail(t *testing.T) {
	cfg := &Config{ArtistEmails: []string{"artist@example.com"}}
	require.True(t, cfg.IsArtistEmail("artist@example.com"))
	require.True(t, cfg.IsArtistEmail("  ARTIST@example.com "))
	require.False(t, cfg.IsArtistEmail("listener@example.com"))
	require.False(t, cfg.IsArtistEmail(""))
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("STREAM_UNIT_PRICE_AF", "2")
	t.Setenv("PREVIEW_BUDGET_SECONDS", "30")
	t.Setenv("PLAYBACK_POLICY", PolicyFreePreview)
	t.Setenv("ARTIST_EMAILS", "a@example.com, B@Example.com")

	cfg := Load()
	require.Equal(t, int64(2), cfg.StreamUnitPrice)
	require.Equal(t, 30, cfg.PreviewBudgetSecs)
	require.Equal(t, PolicyFreePreview, cfg.PlaybackPolicy)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.ArtistEmails)

	// Untouched knobs keep their defaults.
	require.Equal(t, int64(500), cfg.WithdrawMinAF)
	require.Equal(t, int64(500), cfg.TopUpMinAF)
	require.Equal(t, int64(500), cfg.StartingCreditAF)
}

func TestGetEnvInt64IgnoresGarbage(t *testing.T) {
	t.Setenv("WITHDRAW_MIN_AF", "not-a-number")
	cfg := Load()
	require.Equal(t, int64(500), cfg.WithdrawMinAF)
}
