package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchvault/internal/pvp"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func newMatch(t *testing.T, id string, startMillis int64, queue string, subjects ...string) *pvp.MatchDetail {
	t.Helper()
	m := &pvp.MatchDetail{MatchInfo: pvp.MatchInfo{
		MatchID:         id,
		GameStartMillis: startMillis,
		QueueID:         queue,
	}}
	for _, s := range subjects {
		m.Players = append(m.Players, pvp.MatchPlayer{Subject: s})
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	m.Raw = raw
	return m
}

func newHistory(t *testing.T, puuid string, ids ...string) *pvp.MatchHistory {
	t.Helper()
	h := &pvp.MatchHistory{Subject: puuid, EndIndex: len(ids), Total: len(ids)}
	for _, id := range ids {
		h.History = append(h.History, pvp.HistoryEntry{MatchID: id})
	}
	raw, err := json.Marshal(h)
	require.NoError(t, err)
	h.Raw = raw
	return h
}

func newRating(t *testing.T, puuid string) *pvp.Rating {
	t.Helper()
	r := &pvp.Rating{Subject: puuid, Version: 1}
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	r.Raw = raw
	return r
}

var errFetch = errors.New("fetch failed")

type fakeFetcher struct {
	mu         sync.Mutex
	matches    map[string]*pvp.MatchDetail
	general    map[string]*pvp.MatchHistory
	deathmatch map[string]*pvp.MatchHistory
	ratings    map[string]*pvp.Rating
	failing    map[string]bool
	fetched    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		matches:    make(map[string]*pvp.MatchDetail),
		general:    make(map[string]*pvp.MatchHistory),
		deathmatch: make(map[string]*pvp.MatchHistory),
		ratings:    make(map[string]*pvp.Rating),
		failing:    make(map[string]bool),
	}
}

func (f *fakeFetcher) FetchMatchDetail(_ context.Context, matchID string) (*pvp.MatchDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, matchID)
	if f.failing[matchID] {
		return nil, errFetch
	}
	m, ok := f.matches[matchID]
	if !ok {
		return nil, errFetch
	}
	return m, nil
}

func (f *fakeFetcher) FetchMatchHistory(_ context.Context, puuid, queueFilter string) (*pvp.MatchHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.general
	if queueFilter == pvp.QueueDeathmatch {
		src = f.deathmatch
	}
	if h, ok := src[puuid]; ok {
		return h, nil
	}
	return nil, errFetch
}

func (f *fakeFetcher) FetchRating(_ context.Context, puuid string) (*pvp.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.ratings[puuid]; ok {
		return r, nil
	}
	return nil, errFetch
}

type memCatalog struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *memCatalog) Record(_ context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *memCatalog) Lookup(_ context.Context, matchID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.MatchID == matchID {
			return e.Dir, true, nil
		}
	}
	return "", false, nil
}

type countingObserver struct {
	mu         sync.Mutex
	ok, failed int
	referenced map[Kind]int
}

func (o *countingObserver) ObserveArchive(err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func (o *countingObserver) ObserveReferenced(kind Kind, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.referenced == nil {
		o.referenced = make(map[Kind]int)
	}
	o.referenced[kind] += n
}
