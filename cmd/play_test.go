package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/dmm/internal/cache"
)

func TestResolveTracks(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))

	lib := cache.New(filepath.Join(dir, "cache"))
	cached := cache.NewKey(cache.Source{Format: "opus", Kind: "youtube"}, "abc")
	path, err := lib.Create(cached)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	missing := cache.NewKey(cache.Source{Format: "opus", Kind: "youtube"}, "nope")

	refs := resolveTracks([]string{
		local,
		cached.String(),
		missing.String(),
		filepath.Join(dir, "absent.mp3"),
	}, lib)

	assert.Equal(t, []trackRef{
		{Path: local, Hint: ".flac"},
		{Path: path, Hint: ""},
	}, refs)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00.000", formatClock(0))
	assert.Equal(t, "00:03:25.250", formatClock(3*time.Minute+25*time.Second+250*time.Millisecond))
	assert.Equal(t, "01:00:01.001", formatClock(time.Hour+time.Second+time.Millisecond))
}
