package archive

import (
	"strings"
	"time"

	"matchvault/internal/pvp"
)

const dirTimeLayout = "2006-01-02_15-04-05"

// DirName derives the archive name of a match from its start time and queue.
// The same match document always yields the same name.
func DirName(m *pvp.MatchDetail) string {
	start := time.UnixMilli(m.MatchInfo.GameStartMillis).UTC()
	return start.Format(dirTimeLayout) + "_" + sanitize(m.MatchInfo.QueueID)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}
