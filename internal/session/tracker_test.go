package session

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const me = "me-puuid"

func presence(puuid, loopState, queueID string) json.RawMessage {
	private := fmt.Sprintf(`{"sessionLoopState":%q,"queueId":%q,"partyId":"party"}`, loopState, queueID)
	encoded := base64.StdEncoding.EncodeToString([]byte(private))
	return json.RawMessage(fmt.Sprintf(`{"puuid":%q,"game_name":"n","product":"valorant","private":%q}`, puuid, encoded))
}

func inGame(puuid string) json.RawMessage {
	return presence(puuid, "INGAME", "deathmatch")
}

func menus(puuid string) json.RawMessage {
	return presence(puuid, "MENUS", "")
}

func batch(p ...json.RawMessage) []json.RawMessage {
	return p
}

func TestDecodePresence(t *testing.T) {
	p, err := DecodePresence(inGame("abc"))
	require.NoError(t, err)

	assert.Equal(t, "abc", p.PUUID)
	assert.True(t, p.InGame)
	assert.Equal(t, "deathmatch", p.QueueID)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(p.Document, &doc))
	private, ok := doc["private"].(map[string]any)
	require.True(t, ok, "private should be decoded into an object")
	assert.Equal(t, "INGAME", private["sessionLoopState"])
	assert.Equal(t, "valorant", doc["product"])
}

func TestDecodePresence_Malformed(t *testing.T) {
	notObject := base64.StdEncoding.EncodeToString([]byte("[1,2]"))
	cases := []json.RawMessage{
		json.RawMessage(`nope`),
		json.RawMessage(`{"private":""}`),
		json.RawMessage(`{"puuid":"x"}`),
		json.RawMessage(`{"puuid":"x","private":"!!!"}`),
		json.RawMessage(`{"puuid":"x","private":""}`),
		json.RawMessage(fmt.Sprintf(`{"puuid":"x","private":%q}`, notObject)),
	}
	for i, raw := range cases {
		_, err := DecodePresence(raw)
		assert.Error(t, err, "case %d: %s", i, raw)
	}
}

func TestTracker_MatchLifecycle(t *testing.T) {
	endedAt := time.Unix(1700000000, 0)
	tr := NewTracker(me, WithClock(func() time.Time { return endedAt }))
	assert.Nil(t, tr.ObserveMessage(MatchURIPrefix+"match-1"))

	// 1: not in game
	signals := tr.ObservePresences(batch(menus(me), menus("stranger")))
	assert.Empty(t, signals)
	assert.Equal(t, OutOfGame, tr.State().Phase)

	// 2: enters game
	signals = tr.ObservePresences(batch(inGame(me), inGame("mate-1")))
	require.Len(t, signals, 1)
	assert.Equal(t, MatchStarted{MatchID: "match-1"}, signals[0])
	assert.Equal(t, InGame, tr.State().Phase)

	// 3: still in game, another player shows up
	signals = tr.ObservePresences(batch(inGame(me), inGame("mate-2"), menus("idle")))
	assert.Empty(t, signals)

	// 4: leaves
	signals = tr.ObservePresences(batch(menus(me)))
	require.Len(t, signals, 1)
	ended, ok := signals[0].(MatchEnded)
	require.True(t, ok)
	assert.Equal(t, "match-1", ended.MatchID)
	assert.Equal(t, endedAt, ended.EndedAt)

	assert.Contains(t, ended.Snapshot, me)
	assert.Contains(t, ended.Snapshot, "mate-1")
	assert.Contains(t, ended.Snapshot, "mate-2")
	assert.NotContains(t, ended.Snapshot, "idle")

	state := tr.State()
	assert.Equal(t, OutOfGame, state.Phase)
	assert.Empty(t, state.CoPresences)
	assert.Empty(t, state.ActiveMatchID)
	assert.Len(t, ended.Documents(), len(ended.Snapshot))
}

func TestTracker_ExactlyOneTransitionPerEdge(t *testing.T) {
	tr := NewTracker(me)
	tr.ObserveMessage(MatchURIPrefix + "m")

	var started, ended int
	for _, b := range [][]json.RawMessage{
		batch(menus(me)),
		batch(inGame(me)),
		batch(inGame(me)),
		batch(menus(me)),
		batch(menus(me)),
	} {
		for _, s := range tr.ObservePresences(b) {
			switch s.(type) {
			case MatchStarted:
				started++
			case MatchEnded:
				ended++
			}
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ended)
}

func TestTracker_MalformedPresenceSkipped(t *testing.T) {
	tr := NewTracker(me)

	broken := json.RawMessage(`{"puuid":"someone","private":"%%%"}`)
	signals := tr.ObservePresences(batch(broken, inGame(me)))

	require.Len(t, signals, 1)
	assert.IsType(t, MatchStarted{}, signals[0])
	assert.Equal(t, InGame, tr.State().Phase)
	assert.NotContains(t, tr.State().CoPresences, "someone")
}

func TestTracker_FirstPresenceWins(t *testing.T) {
	tr := NewTracker(me)
	tr.ObservePresences(batch(inGame(me), presence("mate", "INGAME", "competitive")))
	tr.ObservePresences(batch(presence("mate", "INGAME", "deathmatch")))

	assert.Equal(t, "competitive", tr.State().CoPresences["mate"].QueueID)
}

func TestTracker_IgnoresUnrelatedURIs(t *testing.T) {
	tr := NewTracker(me)

	assert.Nil(t, tr.ObserveMessage("/riot-messaging-service/v1/message/ares-pregame/pregame/v1/matches/x"))
	assert.Nil(t, tr.ObserveMessage(MatchURIPrefix))
	assert.Empty(t, tr.State().ActiveMatchID)

	tr.ObserveMessage(MatchURIPrefix + "abc-123")
	assert.Equal(t, "abc-123", tr.State().ActiveMatchID)
}

func TestTracker_EndWithoutMatchIDDiscarded(t *testing.T) {
	tr := NewTracker(me)
	tr.ObservePresences(batch(inGame(me), inGame("mate")))

	signals := tr.ObservePresences(batch(menus(me)))
	require.Len(t, signals, 1)
	discarded := signals[0].(MatchDiscarded)
	assert.Equal(t, 2, discarded.Presences)
	assert.Empty(t, tr.State().CoPresences)
}

func TestTracker_MissedMatchIDDoesNotLeakIntoNextMatch(t *testing.T) {
	tr := NewTracker(me)

	// match A never reports its id
	tr.ObservePresences(batch(inGame(me)))
	signals := tr.ObservePresences(batch(menus(me)))
	require.Len(t, signals, 1)
	assert.IsType(t, MatchDiscarded{}, signals[0])

	// match B's id arrives while still in menus and must stay with B
	assert.Empty(t, tr.ObserveMessage(MatchURIPrefix+"match-B"))
	assert.Equal(t, "match-B", tr.State().ActiveMatchID)

	signals = tr.ObservePresences(batch(inGame(me)))
	require.Len(t, signals, 1)
	assert.Equal(t, MatchStarted{MatchID: "match-B"}, signals[0])

	signals = tr.ObservePresences(batch(menus(me)))
	require.Len(t, signals, 1)
	ended := signals[0].(MatchEnded)
	assert.Equal(t, "match-B", ended.MatchID)
	assert.Empty(t, tr.State().ActiveMatchID)

	// match C is unaffected as well
	tr.ObserveMessage(MatchURIPrefix + "match-C")
	tr.ObservePresences(batch(inGame(me)))
	signals = tr.ObservePresences(batch(menus(me)))
	require.Len(t, signals, 1)
	assert.Equal(t, "match-C", signals[0].(MatchEnded).MatchID)
}
