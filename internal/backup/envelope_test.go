package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileNameRoundTrip(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC)
	name := fileName(at)
	require.Equal(t, "backup_2025-01-02T03-04-05.678Z.json", name)

	got, err := timeFromName("backups/" + name)
	require.NoError(t, err)
	require.True(t, at.Equal(got))

	got, err = timeFromName("backup_2025-01-02T03-04-05.678Z_1.json")
	require.NoError(t, err)
	require.True(t, at.Equal(got))

	_, err = timeFromName("notes.json")
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2025-01-02T03:04:05.678Z", "2025-01-02T03-04-05.678Z", "2025-01-02T03:04:05Z"} {
		_, err := parseTimestamp(s)
		require.NoError(t, err, s)
	}
	_, err := parseTimestamp("yesterday")
	require.Error(t, err)
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	items := []dated{
		{name: "a", at: now.Add(-1 * day)},
		{name: "b", at: now.Add(-31 * day)},
		{name: "c", at: now.Add(-2 * day)},
		{name: "d", at: now.Add(-3 * day)},
	}

	drop := expired(items, now, Settings{RetentionDays: 30, MaxBackups: 2})
	var names []string
	for _, d := range drop {
		names = append(names, d.name)
	}
	require.Equal(t, []string{"b", "d"}, names)

	require.Empty(t, expired(items, now, Settings{}))
}
