package archive

import (
	"testing"

	"matchvault/internal/pvp"

	"github.com/stretchr/testify/assert"
)

func TestDirName(t *testing.T) {
	m := &pvp.MatchDetail{MatchInfo: pvp.MatchInfo{
		MatchID:         "abc",
		GameStartMillis: 1700000000123,
		QueueID:         "competitive",
	}}

	assert.Equal(t, "2023-11-14_22-13-20_competitive", DirName(m))
	assert.Equal(t, DirName(m), DirName(m))

	same := *m
	same.MatchInfo.MatchID = "other"
	assert.Equal(t, DirName(m), DirName(&same), "name depends only on start time and queue")
}

func TestDirName_NoColons(t *testing.T) {
	m := &pvp.MatchDetail{MatchInfo: pvp.MatchInfo{GameStartMillis: 1, QueueID: "weird/queue:id"}}

	name := DirName(m)
	assert.Equal(t, "1970-01-01_00-00-00_weird-queue-id", name)
	assert.NotContains(t, name, ":")
}
