package main

import (
	"context"
	"fmt"
	"time"

	"matchvault/internal/lcu"
	"matchvault/internal/pvp"
	"matchvault/internal/session"
)

const (
	reconnectDelay   = 2 * time.Second
	lockfileMaxWait  = 10 * time.Second
	tokenRefreshTime = 30 * time.Minute
)

// connectionLoop keeps a connection to the local client alive, reconnecting
// whenever the websocket drops, until ctx is done
func (a *App) connectionLoop(ctx context.Context, lockfilePath string) error {
	for {
		client, err := a.connect(ctx, lockfilePath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("connection failed")
		} else {
			a.stayConnected(ctx, client)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn().Msg("riot client disconnected, waiting for reconnection")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// connect waits for the local client, loads the session and tokens and
// subscribes to events
func (a *App) connect(ctx context.Context, lockfilePath string) (*lcu.Client, error) {
	creds, err := lcu.WaitForLockfile(ctx, lockfilePath, lockfileMaxWait, a.logger)
	if err != nil {
		return nil, err
	}

	client := lcu.NewClient(creds, lcu.WithLogger(a.logger))
	sess, err := client.WaitForSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := a.refreshTokens(ctx, client); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.tracker == nil || a.tracker.State().PUUID != sess.PUUID {
		a.tracker = session.NewTracker(sess.PUUID, session.WithLogger(a.logger))
	}
	a.mu.Unlock()

	if err := a.wsClient.Connect(ctx, creds); err != nil {
		return nil, err
	}

	a.logger.Info().Str("puuid", sess.PUUID).Str("region", a.conf.Region).Msg("monitoring matches")
	return client, nil
}

// stayConnected blocks until the websocket drops or ctx is done, refreshing
// the entitlement tokens while connected
func (a *App) stayConnected(ctx context.Context, client *lcu.Client) {
	ticker := time.NewTicker(tokenRefreshTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wsClient.Done():
			return
		case <-ticker.C:
			if err := a.refreshTokens(ctx, client); err != nil {
				a.logger.Warn().Err(err).Msg("token refresh failed")
			}
		}
	}
}

func (a *App) refreshTokens(ctx context.Context, client *lcu.Client) error {
	token, err := client.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get entitlement token: %w", err)
	}
	a.pvp.SetTokens(pvp.Tokens{AccessToken: token.AccessToken, Entitlement: token.Token})
	a.logger.Debug().Msg("tokens refreshed")
	return nil
}

// currentTracker returns the tracker of the signed-in player, nil before the
// first session loads
func (a *App) currentTracker() *session.Tracker {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker
}
