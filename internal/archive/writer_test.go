package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Persist(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zerolog.Nop())
	m := newMatch(t, "m1", 1700000000000, "competitive", "p1")

	dir, err := w.Persist(m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2023-11-14_22-13-20_competitive"), dir)

	body, err := os.ReadFile(filepath.Join(dir, matchFile))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "\n    \""), "match.json should be indented")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	// a second write of the same match lands in the same place without error
	again, err := w.Persist(m)
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestWriter_PersistPlayer(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	dir, err := w.Persist(newMatch(t, "m1", 1700000000000, "competitive", "p1", "p2"))
	require.NoError(t, err)

	err = w.PersistPlayer(dir, &PlayerData{
		Subject:         "p1",
		Rating:          newRating(t, "p1"),
		RecentGames:     newHistory(t, "p1", "a"),
		DeathmatchGames: newHistory(t, "p1"),
		Presence:        json.RawMessage(`{"puuid":"p1","private":{"sessionLoopState":"INGAME"}}`),
	})
	require.NoError(t, err)

	err = w.PersistPlayer(dir, &PlayerData{
		Subject:         "p2",
		Rating:          newRating(t, "p2"),
		RecentGames:     newHistory(t, "p2"),
		DeathmatchGames: newHistory(t, "p2"),
	})
	require.NoError(t, err)

	for _, name := range []string{ratingFile, recentGamesFile, deathmatchGamesFile, presenceFile} {
		assert.FileExists(t, filepath.Join(dir, "p1", name))
	}
	assert.DirExists(t, filepath.Join(dir, "p1", deathmatchesDir))
	assert.NoFileExists(t, filepath.Join(dir, "p2", presenceFile))
	assert.DirExists(t, filepath.Join(dir, "p2", deathmatchesDir))
	assert.DirExists(t, filepath.Join(dir, "p2", otherDir))
}

func TestWriter_PersistReferenced(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	dir, err := w.Persist(newMatch(t, "m1", 1700000000000, "competitive", "p1"))
	require.NoError(t, err)
	require.NoError(t, w.PersistPlayer(dir, &PlayerData{
		Subject:         "p1",
		Rating:          newRating(t, "p1"),
		RecentGames:     newHistory(t, "p1"),
		DeathmatchGames: newHistory(t, "p1"),
	}))

	dm := newMatch(t, "d1", 1600000000000, "deathmatch")
	other := newMatch(t, "o1", 1650000000000, "unrated")
	require.NoError(t, w.PersistReferenced(dir, "p1", KindDeathmatch, dm))
	require.NoError(t, w.PersistReferenced(dir, "p1", KindOther, other))

	assert.FileExists(t, filepath.Join(dir, "p1", deathmatchesDir, DirName(dm)+".json"))
	assert.FileExists(t, filepath.Join(dir, "p1", otherDir, DirName(other)+".json"))

	leftovers, err := filepath.Glob(filepath.Join(dir, "p1", "*", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriter_RejectsInvalidDocument(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	m := newMatch(t, "m1", 1700000000000, "competitive")
	m.Raw = json.RawMessage(`{not json`)

	_, err := w.Persist(m)
	assert.Error(t, err)
}

func TestWriter_RejectsSubjectOutsideMatchDir(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(filepath.Join(root, "out"), zerolog.Nop())
	dir, err := w.Persist(newMatch(t, "m1", 1700000000000, "competitive"))
	require.NoError(t, err)

	for _, subject := range []string{"../../escape", "a/b", `a\b`, "..", ""} {
		err := w.PersistPlayer(dir, &PlayerData{
			Subject:         subject,
			Rating:          newRating(t, "p1"),
			RecentGames:     newHistory(t, "p1"),
			DeathmatchGames: newHistory(t, "p1"),
		})
		assert.Error(t, err, subject)

		err = w.PersistReferenced(dir, subject, KindOther, newMatch(t, "o1", 1650000000000, "unrated"))
		assert.Error(t, err, subject)
	}
	assert.NoDirExists(t, filepath.Join(root, "escape"))
}
