package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"matchvault/internal/pvp"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fetcher retrieves documents from the remote match service
type Fetcher interface {
	FetchMatchDetail(ctx context.Context, matchID string) (*pvp.MatchDetail, error)
	FetchMatchHistory(ctx context.Context, puuid, queueFilter string) (*pvp.MatchHistory, error)
	FetchRating(ctx context.Context, puuid string) (*pvp.Rating, error)
}

// Observer is notified about archive runs
type Observer interface {
	ObserveArchive(err error, elapsed time.Duration)
	ObserveReferenced(kind Kind, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveArchive(error, time.Duration) {}
func (nopObserver) ObserveReferenced(Kind, int)         {}

// Result summarizes a finished archive run
type Result struct {
	RunID        string
	MatchID      string
	Dir          string
	Players      int
	Deathmatches int
	Others       int
}

// Archiver fetches a finished match and everything referenced by its
// participants and persists it through a Writer.
type Archiver struct {
	fetcher  Fetcher
	writer   *Writer
	catalog  Catalog
	observer Observer
	logger   zerolog.Logger
}

// Option configures an Archiver
type Option func(*Archiver)

// WithCatalog records every archived match in c
func WithCatalog(c Catalog) Option {
	return func(a *Archiver) {
		a.catalog = c
	}
}

// WithObserver sets the archive observer
func WithObserver(o Observer) Option {
	return func(a *Archiver) {
		a.observer = o
	}
}

// WithLogger sets the archiver logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger.With().Str("component", "archiver").Logger()
	}
}

// NewArchiver creates an archiver
func NewArchiver(fetcher Fetcher, writer *Writer, opts ...Option) *Archiver {
	a := &Archiver{
		fetcher:  fetcher,
		writer:   writer,
		catalog:  nopCatalog{},
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive persists matchID and, for every participant, their rating, recent
// histories and the matches those histories reference. presences maps puuid
// to the presence document captured during the match; participants without
// one get no presence.json.
//
// The first failure aborts the run. Files already written stay in place and a
// repeated run overwrites them.
func (a *Archiver) Archive(ctx context.Context, matchID string, presences map[string]json.RawMessage) (res *Result, err error) {
	started := time.Now()
	res = &Result{RunID: uuid.NewString(), MatchID: matchID}
	log := a.logger.With().Str("run", res.RunID).Str("match", matchID).Logger()

	defer func() {
		a.observer.ObserveArchive(err, time.Since(started))
		if err != nil {
			log.Error().Err(err).Msg("archive failed")
		}
	}()

	log.Info().Msg("archiving match")

	match, err := a.fetcher.FetchMatchDetail(ctx, matchID)
	if err != nil {
		return res, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}

	dir, err := a.writer.Persist(match)
	if err != nil {
		return res, err
	}
	res.Dir = dir
	a.record(ctx, log, Entry{MatchID: matchID, Dir: filepath.Base(dir), Kind: KindMatch})

	for _, puuid := range match.Subjects() {
		dms, others, err := a.archivePlayer(ctx, log, matchID, dir, puuid, presences[puuid])
		if err != nil {
			return res, fmt.Errorf("player %s: %w", puuid, err)
		}
		res.Players++
		res.Deathmatches += dms
		res.Others += others
	}

	log.Info().
		Str("dir", dir).
		Int("players", res.Players).
		Int("deathmatches", res.Deathmatches).
		Int("other", res.Others).
		Dur("elapsed", time.Since(started)).
		Msg("match archived")
	return res, nil
}

func (a *Archiver) archivePlayer(ctx context.Context, log zerolog.Logger, matchID, dir, puuid string, presence json.RawMessage) (int, int, error) {
	rating, err := a.fetcher.FetchRating(ctx, puuid)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch rating: %w", err)
	}
	recent, err := a.fetcher.FetchMatchHistory(ctx, puuid, "")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch match history: %w", err)
	}
	deathmatch, err := a.fetcher.FetchMatchHistory(ctx, puuid, pvp.QueueDeathmatch)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch deathmatch history: %w", err)
	}

	err = a.writer.PersistPlayer(dir, &PlayerData{
		Subject:         puuid,
		Rating:          rating,
		RecentGames:     recent,
		DeathmatchGames: deathmatch,
		Presence:        presence,
	})
	if err != nil {
		return 0, 0, err
	}

	dmIDs, otherIDs := PlanReferences(matchID, recent, deathmatch)
	if err := a.archiveReferenced(ctx, log, matchID, dir, puuid, KindDeathmatch, dmIDs); err != nil {
		return 0, 0, err
	}
	if err := a.archiveReferenced(ctx, log, matchID, dir, puuid, KindOther, otherIDs); err != nil {
		return 0, 0, err
	}

	log.Debug().Str("player", puuid).Int("deathmatches", len(dmIDs)).Int("other", len(otherIDs)).Msg("player archived")
	return len(dmIDs), len(otherIDs), nil
}

func (a *Archiver) archiveReferenced(ctx context.Context, log zerolog.Logger, matchID, dir, puuid string, kind Kind, ids []string) error {
	for _, id := range ids {
		m, err := a.fetcher.FetchMatchDetail(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch %s match %s: %w", kind, id, err)
		}
		if err := a.writer.PersistReferenced(dir, puuid, kind, m); err != nil {
			return err
		}
		a.record(ctx, log, Entry{MatchID: id, Dir: DirName(m), Kind: kind, Parent: matchID, Player: puuid})
	}
	a.observer.ObserveReferenced(kind, len(ids))
	return nil
}

// record adds e to the catalog. Catalog failures are logged and never abort
// an archive run since the files on disk are authoritative.
func (a *Archiver) record(ctx context.Context, log zerolog.Logger, e Entry) {
	prev, found, err := a.catalog.Lookup(ctx, e.MatchID)
	if err != nil {
		log.Warn().Err(err).Str("id", e.MatchID).Msg("catalog lookup failed")
	} else if found && prev != e.Dir {
		log.Warn().Str("id", e.MatchID).Str("previous", prev).Str("current", e.Dir).
			Msg("match archived under a different name")
	}

	e.ArchivedAt = time.Now().UTC()
	if err := a.catalog.Record(ctx, e); err != nil {
		log.Warn().Err(err).Str("id", e.MatchID).Msg("catalog record failed")
	}
}

// PlanReferences splits a player's histories into the referenced matches to
// archive. Deathmatch history ids are deathmatch references. A general
// history id is an "other" reference unless the deathmatch history contains
// it. archived, the match already being archived, is left out of both and
// each id appears once.
func PlanReferences(archived string, general, deathmatch *pvp.MatchHistory) (dm, other []string) {
	seen := map[string]bool{archived: true}
	for _, id := range deathmatch.MatchIDs() {
		if seen[id] {
			continue
		}
		seen[id] = true
		dm = append(dm, id)
	}

	for _, id := range general.MatchIDs() {
		if seen[id] {
			continue
		}
		seen[id] = true
		other = append(other, id)
	}
	return dm, other
}
