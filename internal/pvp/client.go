package pvp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"matchvault/internal/queue"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

const (
	// DefaultClientPlatform is the base64 platform descriptor the game client sends
	DefaultClientPlatform = "ew0KCSJwbGF0Zm9ybVR5cGUiOiAiUEMiLA0KCSJwbGF0Zm9ybU9TIjogIldpbmRvd3MiLA0KCSJwbGF0Zm9ybU9TVmVyc2lvbiI6ICIxMC4wLjE5MDQyLjEuMjU2LjY0Yml0IiwNCgkicGxhdGZvcm1DaGlwc2V0IjogIlVua25vd24iDQp9"
	DefaultClientVersion  = "release-03.08-7-622822"

	// DefaultHistoryPageSize caps how many history entries are requested
	DefaultHistoryPageSize = 6

	defaultTimeout = 30 * time.Second
)

// Tokens are the credentials obtained from the local client
type Tokens struct {
	AccessToken string
	Entitlement string
}

// Observer receives client activity, used for metrics
type Observer interface {
	ObserveCapture()
	ObserveCache(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveCapture()   {}
func (nopObserver) ObserveCache(bool) {}

// Client talks to the pd.<region>.a.pvp.net endpoints. Every request is
// executed through the shared request queue.
type Client struct {
	baseURL    string
	httpClient *http.Client
	queue      *queue.Queue
	capturer   *Capturer
	cacheSize  int
	cache      *matchCache
	platform   string
	version    string
	pageSize   int
	observer   Observer
	logger     zerolog.Logger

	mu     sync.RWMutex
	tokens Tokens
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the regional base URL (useful for testing)
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientIdentity sets the platform and version identity headers
func WithClientIdentity(platform, version string) Option {
	return func(c *Client) {
		if platform != "" {
			c.platform = platform
		}
		if version != "" {
			c.version = version
		}
	}
}

// WithHistoryPageSize sets the endIndex used for history requests
func WithHistoryPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMatchCache keeps up to sizeBytes of compressed match-detail bodies in
// memory. Match documents never change, so cached entries do not expire.
func WithMatchCache(sizeBytes int) Option {
	return func(c *Client) {
		c.cacheSize = sizeBytes
	}
}

// WithObserver attaches an activity observer
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "pvp").Logger()
	}
}

// NewClient creates a client for region. Bodies that fail to parse are
// written to capturer.
func NewClient(region string, q *queue.Queue, capturer *Capturer, opts ...Option) *Client {
	c := &Client{
		baseURL:    fmt.Sprintf("https://pd.%s.a.pvp.net", region),
		httpClient: &http.Client{Timeout: defaultTimeout},
		queue:      q,
		capturer:   capturer,
		platform:   DefaultClientPlatform,
		version:    DefaultClientVersion,
		pageSize:   DefaultHistoryPageSize,
		observer:   nopObserver{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheSize > 0 {
		cache, err := newMatchCache(c.cacheSize)
		if err != nil {
			c.logger.Warn().Err(err).Msg("match cache disabled")
		} else {
			c.cache = cache
		}
	}
	return c
}

// SetTokens replaces the credentials used for subsequent requests
func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

func (c *Client) currentTokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// FetchMatchDetail fetches the full details of one match
func (c *Client) FetchMatchDetail(ctx context.Context, matchID string) (*MatchDetail, error) {
	path := "/match-details/v1/matches/" + url.PathEscape(matchID)

	if c.cache != nil {
		if body, ok := c.cache.get(matchID); ok {
			c.observer.ObserveCache(true)
			var match MatchDetail
			if err := c.decode(path, body, &match); err != nil {
				return nil, err
			}
			return &match, nil
		}
		c.observer.ObserveCache(false)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}

	var match MatchDetail
	if err := c.decode(path, body, &match); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.set(matchID, body); err != nil {
			c.logger.Debug().Err(err).Str("match", matchID).Msg("match not cached")
		}
	}
	return &match, nil
}

// FetchMatchHistory fetches recent matches for puuid. An empty queueFilter
// returns history across all queues.
func (c *Client) FetchMatchHistory(ctx context.Context, puuid, queueFilter string) (*MatchHistory, error) {
	path := fmt.Sprintf("/match-history/v1/history/%s?endIndex=%d", url.PathEscape(puuid), c.pageSize)
	if queueFilter != "" {
		path += "&queue=" + url.QueryEscape(queueFilter)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", puuid, err)
	}

	var history MatchHistory
	if err := c.decode(path, body, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// FetchRating fetches the rating snapshot for puuid
func (c *Client) FetchRating(ctx context.Context, puuid string) (*Rating, error) {
	path := "/mmr/v1/players/" + url.PathEscape(puuid)

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rating for %s: %w", puuid, err)
	}

	var rating Rating
	if err := c.decode(path, body, &rating); err != nil {
		return nil, err
	}
	return &rating, nil
}

// get runs one GET through the request queue and returns the body. Transport
// errors and non-2xx statuses fail the attempt so the queue retries them.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return queue.Do(ctx, c.queue, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}

		tokens := c.currentTokens()
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		req.Header.Set("X-Riot-Entitlements-JWT", tokens.Entitlement)
		req.Header.Set("X-Riot-ClientPlatform", c.platform)
		req.Header.Set("X-Riot-ClientVersion", c.version)
		req.Header.Set("User-Agent", "")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, path)
		}

		c.logger.Debug().Str("path", path).Int("bytes", len(body)).Msg("fetched")
		return body, nil
	})
}

// decode parses body into doc. On failure the body is captured and a
// *ParseError is returned.
func (c *Client) decode(path string, body []byte, doc document) error {
	err := json.Unmarshal(body, doc)
	if err == nil {
		err = doc.validate()
	}
	if err == nil {
		doc.setRaw(body)
		return nil
	}

	c.observer.ObserveCapture()
	perr := &ParseError{Path: path, Err: err}
	capturePath, cerr := c.capturer.Capture(body)
	if cerr != nil {
		c.logger.Error().Err(cerr).Str("path", path).Msg("failed to capture malformed body")
	} else {
		perr.CapturePath = capturePath
	}
	c.logger.Warn().Err(err).Str("path", path).Str("capture", perr.CapturePath).Msg("malformed response")
	return perr
}

// matchCache stores zstd-compressed match bodies. freecache rejects entries
// larger than 1/1024 of its size, and raw match documents are large.
type matchCache struct {
	store *freecache.Cache
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newMatchCache(sizeBytes int) (*matchCache, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &matchCache{
		store: freecache.NewCache(sizeBytes),
		enc:   enc,
		dec:   dec,
	}, nil
}

func (m *matchCache) get(matchID string) ([]byte, bool) {
	compressed, err := m.store.Get([]byte(matchID))
	if err != nil {
		return nil, false
	}
	body, err := m.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}
	return body, true
}

func (m *matchCache) set(matchID string, body []byte) error {
	return m.store.Set([]byte(matchID), m.enc.EncodeAll(body, nil), 0)
}
