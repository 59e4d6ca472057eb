package main

import (
	"matchvault/internal/lcu"
	"matchvault/internal/session"
)

// handleEvent feeds websocket events to the tracker. It runs on the websocket
// goroutine and never waits for an archive.
func (a *App) handleEvent(e lcu.Event) {
	tracker := a.currentTracker()
	if tracker == nil {
		return
	}

	var signals []session.Signal
	switch e.Name {
	case lcu.EventPresences:
		presences, err := e.Presences()
		if err != nil {
			a.logger.Debug().Err(err).Msg("dropping presence event")
			return
		}
		signals = tracker.ObservePresences(presences)
	case lcu.EventMessaging:
		signals = tracker.ObserveMessage(e.URI)
	}

	for _, s := range signals {
		a.dispatch(s)
	}
}

func (a *App) dispatch(s session.Signal) {
	switch s := s.(type) {
	case session.MatchStarted:
		a.logger.Info().Str("match", s.MatchID).Msg("match started")
	case session.MatchEnded:
		a.startArchive(s)
	case session.MatchDiscarded:
		a.logger.Warn().Str("reason", s.Reason).Int("presences", s.Presences).Msg("match end discarded")
	}
}

// startArchive runs the archive of a finished match in the background.
// Archives of different matches may overlap and share the request queue; a
// match already being archived is not started twice.
func (a *App) startArchive(ended session.MatchEnded) {
	a.mu.Lock()
	if a.inFlight[ended.MatchID] {
		a.mu.Unlock()
		a.logger.Warn().Str("match", ended.MatchID).Msg("archive already running")
		return
	}
	a.inFlight[ended.MatchID] = true
	ctx := a.runCtx
	a.archives.Add(1)
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.inFlight, ended.MatchID)
			a.mu.Unlock()
			a.archives.Done()
		}()

		res, err := a.archiver.Archive(ctx, ended.MatchID, ended.Documents())
		if err != nil {
			// the archiver already logged the cause
			return
		}
		a.logger.Info().Str("match", res.MatchID).Str("dir", res.Dir).Msg("archive complete")
	}()
}
