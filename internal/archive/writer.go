package archive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"matchvault/internal/pvp"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	matchFile           = "match.json"
	ratingFile          = "mmr.json"
	recentGamesFile     = "recentGames.json"
	deathmatchGamesFile = "deathmatchGames.json"
	presenceFile        = "presence.json"

	deathmatchesDir = "deathmatches"
	otherDir        = "other"
)

// PlayerData holds the per-participant documents archived next to a match
type PlayerData struct {
	Subject         string
	Rating          *pvp.Rating
	RecentGames     *pvp.MatchHistory
	DeathmatchGames *pvp.MatchHistory

	// Presence is the participant's presence snapshot, nil if none was seen
	Presence json.RawMessage
}

// Writer persists match documents under a root directory. Every write can be
// repeated safely: directories are created if missing and files replaced.
type Writer struct {
	root   string
	logger zerolog.Logger
}

// NewWriter creates a writer rooted at root
func NewWriter(root string, logger zerolog.Logger) *Writer {
	return &Writer{
		root:   root,
		logger: logger.With().Str("component", "writer").Logger(),
	}
}

// Root returns the output directory
func (w *Writer) Root() string {
	return w.root
}

// Persist writes the match document into its archive directory and returns
// the directory path
func (w *Writer) Persist(match *pvp.MatchDetail) (string, error) {
	dir := filepath.Join(w.root, DirName(match))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create match directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, matchFile), match.Raw); err != nil {
		return "", err
	}

	w.logger.Debug().Str("dir", dir).Str("match", match.MatchInfo.MatchID).Msg("match written")
	return dir, nil
}

// PersistPlayer writes one participant's documents under matchDir
func (w *Writer) PersistPlayer(matchDir string, data *PlayerData) error {
	playerDir, err := subjectDir(matchDir, data.Subject)
	if err != nil {
		return err
	}
	dmDir := filepath.Join(playerDir, deathmatchesDir)
	othDir := filepath.Join(playerDir, otherDir)

	for _, dir := range []string{dmDir, othDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	docs := []struct {
		name string
		raw  json.RawMessage
	}{
		{ratingFile, data.Rating.Raw},
		{recentGamesFile, data.RecentGames.Raw},
		{deathmatchGamesFile, data.DeathmatchGames.Raw},
	}
	if data.Presence != nil {
		docs = append(docs, struct {
			name string
			raw  json.RawMessage
		}{presenceFile, data.Presence})
	}
	for _, doc := range docs {
		if err := writeJSON(filepath.Join(playerDir, doc.name), doc.raw); err != nil {
			return err
		}
	}

	w.logger.Debug().Str("player", data.Subject).Bool("presence", data.Presence != nil).Msg("player written")
	return nil
}

// PersistReferenced writes a match referenced by a participant's history into
// the deathmatches/ or other/ directory of that participant
func (w *Writer) PersistReferenced(matchDir, subject string, kind Kind, match *pvp.MatchDetail) error {
	playerDir, err := subjectDir(matchDir, subject)
	if err != nil {
		return err
	}
	sub := otherDir
	if kind == KindDeathmatch {
		sub = deathmatchesDir
	}
	return writeJSON(filepath.Join(playerDir, sub, DirName(match)+".json"), match.Raw)
}

// subjectDir returns the directory of a participant, refusing subjects that
// would leave matchDir
func subjectDir(matchDir, subject string) (string, error) {
	if subject == "" || strings.ContainsAny(subject, `/\`) || strings.Contains(subject, "..") {
		return "", fmt.Errorf("invalid player subject %q", subject)
	}
	return filepath.Join(matchDir, subject), nil
}

// writeJSON writes raw indented to path, replacing any previous file
func writeJSON(path string, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return fmt.Errorf("failed to format %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
