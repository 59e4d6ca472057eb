package lcu

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var (
	ErrLockfileNotFound = errors.New("lockfile not found")
	ErrClientNotRunning = errors.New("riot client is not running")
)

const authUser = "riot"

// Credentials holds the local client connection details parsed from lockfile
type Credentials struct {
	ProcessName string
	PID         string
	Port        string
	Password    string
	Protocol    string
}

// BaseURL returns the local API root
func (c *Credentials) BaseURL() string {
	return "https://127.0.0.1:" + c.Port
}

// AuthHeader returns the Basic authorization header value
func (c *Credentials) AuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(authUser+":"+c.Password))
}

// DefaultLockfilePath returns where the Riot Client writes its lockfile
func DefaultLockfilePath() (string, error) {
	local := os.Getenv("LOCALAPPDATA")
	if local == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("cannot locate local app data: %w", err)
		}
		local = dir
	}
	return filepath.Join(local, "Riot Games", "Riot Client", "Config", "lockfile"), nil
}

// ParseLockfile reads and parses the lockfile content
func ParseLockfile(path string) (*Credentials, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrLockfileNotFound
		}
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	// Lockfile format: name:pid:port:password:protocol
	parts := strings.Split(strings.TrimSpace(string(content)), ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid lockfile format: expected 5 parts, got %d", len(parts))
	}
	if _, err := strconv.ParseUint(parts[2], 10, 16); err != nil {
		return nil, fmt.Errorf("invalid lockfile port %q", parts[2])
	}
	if parts[3] == "" {
		return nil, errors.New("invalid lockfile: empty password")
	}

	return &Credentials{
		ProcessName: parts[0],
		PID:         parts[1],
		Port:        parts[2],
		Password:    parts[3],
		Protocol:    parts[4],
	}, nil
}

// WaitForLockfile blocks until the lockfile at path can be parsed or ctx is
// done. Changes in the lockfile directory wake the wait early; otherwise it
// polls with exponential backoff capped at maxWait.
func WaitForLockfile(ctx context.Context, path string, maxWait time.Duration, logger zerolog.Logger) (*Credentials, error) {
	creds, err := ParseLockfile(path)
	if err == nil {
		return creds, nil
	}
	logger.Info().Str("path", path).Msg("waiting for riot client")

	var events <-chan fsnotify.Event
	if watcher, werr := fsnotify.NewWatcher(); werr == nil {
		defer watcher.Close()
		if werr := watcher.Add(filepath.Dir(path)); werr == nil {
			events = watcher.Events
		} else {
			logger.Debug().Err(werr).Msg("lockfile directory not watchable, polling only")
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = maxWait
	b.MaxElapsedTime = 0
	b.Reset()

	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) != filepath.Base(path) {
				continue
			}
		case <-timer.C:
			timer.Reset(b.NextBackOff())
		}

		creds, err = ParseLockfile(path)
		if err == nil {
			logger.Info().Str("port", creds.Port).Msg("lockfile found")
			return creds, nil
		}
		if !errors.Is(err, ErrLockfileNotFound) {
			logger.Debug().Err(err).Msg("lockfile not ready")
		}
	}
}
