package pvp

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// QueueDeathmatch is the queue id used to split history and archive layout
const QueueDeathmatch = "deathmatch"

// document is implemented by every response type the client decodes
type document interface {
	validate() error
	setRaw(raw []byte)
}

// MatchDetail represents the response from /match-details/v1/matches/{matchId}
type MatchDetail struct {
	MatchInfo MatchInfo     `json:"matchInfo"`
	Players   []MatchPlayer `json:"players"`

	// Raw is the response body exactly as received
	Raw json.RawMessage `json:"-"`
}

type MatchInfo struct {
	MatchID          string `json:"matchId"`
	MapID            string `json:"mapId"`
	GameStartMillis  int64  `json:"gameStartMillis"`
	GameLengthMillis int64  `json:"gameLengthMillis"`
	QueueID          string `json:"queueID"`
	IsCompleted      bool   `json:"isCompleted"`
	IsRanked         bool   `json:"isRanked"`
	SeasonID         string `json:"seasonId"`
}

type MatchPlayer struct {
	Subject     string `json:"subject"`
	GameName    string `json:"gameName"`
	TagLine     string `json:"tagLine"`
	TeamID      string `json:"teamId"`
	CharacterID string `json:"characterId"`
	PartyID     string `json:"partyId"`
}

func (m *MatchDetail) validate() error {
	if m.MatchInfo.MatchID == "" {
		return errors.New("matchInfo.matchId is missing")
	}
	if m.MatchInfo.GameStartMillis <= 0 {
		return fmt.Errorf("matchInfo.gameStartMillis is missing for match %s", m.MatchInfo.MatchID)
	}
	for i, p := range m.Players {
		if p.Subject == "" {
			return fmt.Errorf("players[%d].subject is missing", i)
		}
		if strings.ContainsAny(p.Subject, `/\`) || strings.Contains(p.Subject, "..") {
			return fmt.Errorf("players[%d].subject %q is not a valid puuid", i, p.Subject)
		}
	}
	return nil
}

func (m *MatchDetail) setRaw(raw []byte) { m.Raw = raw }

// Subjects returns the puuids of every player on the roster, in roster order
func (m *MatchDetail) Subjects() []string {
	subjects := make([]string, 0, len(m.Players))
	for _, p := range m.Players {
		subjects = append(subjects, p.Subject)
	}
	return subjects
}

// MatchHistory represents the response from /match-history/v1/history/{puuid}
type MatchHistory struct {
	Subject    string         `json:"Subject"`
	BeginIndex int            `json:"BeginIndex"`
	EndIndex   int            `json:"EndIndex"`
	Total      int            `json:"Total"`
	History    []HistoryEntry `json:"History"`

	Raw json.RawMessage `json:"-"`
}

type HistoryEntry struct {
	MatchID       string `json:"MatchID"`
	GameStartTime int64  `json:"GameStartTime"`
	QueueID       string `json:"QueueID"`
}

func (h *MatchHistory) validate() error {
	if h.Subject == "" {
		return errors.New("Subject is missing")
	}
	for i, e := range h.History {
		if e.MatchID == "" {
			return fmt.Errorf("History[%d].MatchID is missing", i)
		}
	}
	return nil
}

func (h *MatchHistory) setRaw(raw []byte) { h.Raw = raw }

// MatchIDs returns the match ids in history order
func (h *MatchHistory) MatchIDs() []string {
	ids := make([]string, 0, len(h.History))
	for _, e := range h.History {
		ids = append(ids, e.MatchID)
	}
	return ids
}

// Rating represents the response from /mmr/v1/players/{puuid}
type Rating struct {
	Subject                 string          `json:"Subject"`
	Version                 int64           `json:"Version"`
	NewPlayerExperience     bool            `json:"NewPlayerExperienceFinished"`
	LatestCompetitiveUpdate json.RawMessage `json:"LatestCompetitiveUpdate,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (r *Rating) validate() error {
	if r.Subject == "" {
		return errors.New("Subject is missing")
	}
	return nil
}

func (r *Rating) setRaw(raw []byte) { r.Raw = raw }
