package lcu

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultSessionInterval is the delay between session checks while the
// client is still loading
const DefaultSessionInterval = 1500 * time.Millisecond

var errSessionNotLoaded = errors.New("chat session not loaded")

// Client talks to the local Riot Client API
type Client struct {
	credentials     *Credentials
	httpClient      *http.Client
	baseURL         string
	sessionInterval time.Duration
	logger          zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithSessionInterval sets the delay between session checks in WaitForSession
func WithSessionInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.sessionInterval = d
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "lcu").Logger()
	}
}

// NewClient creates a client for the local API described by creds
func NewClient(creds *Credentials, opts ...ClientOption) *Client {
	c := &Client{
		credentials: creds,
		httpClient: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true, // local client uses a self-signed cert
				},
			},
			Timeout: 5 * time.Second,
		},
		baseURL:         creds.BaseURL(),
		sessionInterval: DefaultSessionInterval,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns the credentials the client was created with
func (c *Client) Credentials() *Credentials {
	return c.credentials
}

// Session is the chat session of the signed-in player
type Session struct {
	Loaded   bool   `json:"loaded"`
	PUUID    string `json:"puuid"`
	GameName string `json:"game_name"`
	GameTag  string `json:"game_tag"`
	Region   string `json:"region"`
	State    string `json:"state"`
}

// Session returns the current chat session
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.getJSON(ctx, "/chat/v1/session", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// WaitForSession polls the chat session until the client reports it loaded
func (c *Client) WaitForSession(ctx context.Context) (*Session, error) {
	var session *Session
	op := func() error {
		s, err := c.Session(ctx)
		if err != nil {
			return err
		}
		if !s.Loaded || s.PUUID == "" {
			return errSessionNotLoaded
		}
		session = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug().Err(err).Dur("retry_in", next).Msg("session not ready")
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.sessionInterval), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	c.logger.Info().Str("puuid", session.PUUID).Str("name", session.GameName+"#"+session.GameTag).Msg("session loaded")
	return session, nil
}

// Token holds the tokens used to authenticate against the remote match service
type Token struct {
	AccessToken string `json:"accessToken"`
	Token       string `json:"token"`
	Subject     string `json:"subject"`
}

// Token returns the current entitlement token pair
func (c *Client) Token(ctx context.Context) (*Token, error) {
	var t Token
	if err := c.getJSON(ctx, "/entitlements/v1/token", &t); err != nil {
		return nil, err
	}
	if t.AccessToken == "" || t.Token == "" {
		return nil, errors.New("entitlement response is missing tokens")
	}
	return &t, nil
}

// IsConnected checks if the local client still answers
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.Session(ctx)
	return err == nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.credentials.AuthHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClientNotRunning, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", endpoint, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", endpoint, err)
	}
	return nil
}
