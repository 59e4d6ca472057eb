package session

import (
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// MatchURIPrefix prefixes the messaging-service URI that carries the current match id
const MatchURIPrefix = "/riot-messaging-service/v1/message/ares-core-game/core-game/v1/matches/"

// Phase is the monitored player's game state
type Phase int

const (
	OutOfGame Phase = iota
	InGame
)

func (p Phase) String() string {
	if p == InGame {
		return "IN_GAME"
	}
	return "OUT_OF_GAME"
}

// State is everything the tracker knows about the current session
type State struct {
	PUUID         string
	Phase         Phase
	ActiveMatchID string
	CoPresences   map[string]Presence
}

// Signal is emitted by the tracker on a state transition
type Signal interface {
	signal()
}

// MatchStarted is emitted when the monitored player enters a match
type MatchStarted struct {
	MatchID string
}

// MatchEnded is emitted when the monitored player leaves a match. Snapshot
// holds the co-presences observed during the match and is owned by the receiver.
type MatchEnded struct {
	MatchID  string
	EndedAt  time.Time
	Snapshot map[string]Presence
}

// MatchDiscarded is emitted when a match end could not be tied to a match id
type MatchDiscarded struct {
	Reason    string
	Presences int
}

func (MatchStarted) signal()   {}
func (MatchEnded) signal()     {}
func (MatchDiscarded) signal() {}

// Documents returns the archived form of each snapshot presence keyed by puuid
func (m MatchEnded) Documents() map[string]json.RawMessage {
	docs := make(map[string]json.RawMessage, len(m.Snapshot))
	for puuid, p := range m.Snapshot {
		docs[puuid] = p.Document
	}
	return docs
}

// Tracker turns presence and messaging events into match start/end signals
// for one monitored player.
type Tracker struct {
	now    func() time.Time
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the tracker logger
func WithLogger(logger zerolog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger.With().Str("component", "session").Logger()
	}
}

// NewTracker creates a tracker for the player identified by puuid
func NewTracker(puuid string, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		now:    time.Now,
		logger: zerolog.Nop(),
		state: State{
			PUUID:       puuid,
			Phase:       OutOfGame,
			CoPresences: make(map[string]Presence),
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns a copy of the current state
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state
	s.CoPresences = make(map[string]Presence, len(t.state.CoPresences))
	for k, v := range t.state.CoPresences {
		s.CoPresences[k] = v
	}
	return s
}

// ObservePresences applies one presence batch. Entries that fail to decode
// are skipped without affecting the rest of the batch.
func (t *Tracker) ObservePresences(batch []json.RawMessage) []Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var signals []Signal
	for _, raw := range batch {
		p, err := DecodePresence(raw)
		if err != nil {
			t.logger.Debug().Err(err).Msg("skipping presence")
			continue
		}

		if p.PUUID == t.state.PUUID {
			switch {
			case t.state.Phase == InGame && !p.InGame:
				signals = append(signals, t.endMatch()...)
			case t.state.Phase == OutOfGame && p.InGame:
				signals = append(signals, t.startMatch()...)
			}
		}

		if p.InGame && p.QueueID != "" {
			if _, tracked := t.state.CoPresences[p.PUUID]; !tracked {
				t.state.CoPresences[p.PUUID] = p
			}
		}
	}
	return signals
}

// ObserveMessage applies a messaging-service event. URIs carrying a match id
// set the active match.
func (t *Tracker) ObserveMessage(uri string) []Signal {
	if !strings.HasPrefix(uri, MatchURIPrefix) {
		return nil
	}
	matchID := uri[len(MatchURIPrefix):]
	if matchID == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.ActiveMatchID = matchID
	return nil
}

func (t *Tracker) startMatch() []Signal {
	t.state.Phase = InGame
	t.logger.Info().Str("match", t.state.ActiveMatchID).Msg("entered match")
	return []Signal{MatchStarted{MatchID: t.state.ActiveMatchID}}
}

func (t *Tracker) endMatch() []Signal {
	snapshot := t.state.CoPresences
	t.state.CoPresences = make(map[string]Presence)
	t.state.Phase = OutOfGame

	// An id arriving after the end belongs to whatever match comes next, so
	// an end without one is dropped.
	if t.state.ActiveMatchID == "" {
		t.logger.Warn().Int("presences", len(snapshot)).Msg("match ended before its id was known, discarding")
		return []Signal{MatchDiscarded{Reason: "match id unknown at match end", Presences: len(snapshot)}}
	}

	ended := MatchEnded{
		MatchID:  t.state.ActiveMatchID,
		EndedAt:  t.now(),
		Snapshot: snapshot,
	}
	t.state.ActiveMatchID = ""
	t.logger.Info().Str("match", ended.MatchID).Int("presences", len(snapshot)).Msg("left match")
	return []Signal{ended}
}
