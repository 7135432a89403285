package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/okian/contacts/pkg/logger"
	"github.com/okian/contacts/pkg/metrics"
)

const discoveryPath = "/.well-known/openid-configuration"

// Defaults for JWKSKeySource.
const (
	defaultRefreshInterval    = 6 * time.Hour
	defaultMinRefreshInterval = 30 * time.Second
	defaultFetchTimeout       = 10 * time.Second

	// unknownKIDWait bounds how long a request waits on the refresh limiter.
	unknownKIDWait = time.Millisecond
)

// JWKSKeySource discovers the key set of a token issuer and serves its
// signing keys through keyfunc.
//
// The jwks_uri is read from the issuer's discovery document. Once the first
// download succeeds the set is refreshed in the background every refresh
// interval, and a failed refresh keeps the previous keys. A kid missing from
// the set triggers a refetch at most once per minimum refresh interval. Until
// the first download succeeds, attempts are throttled by the same interval.
type JWKSKeySource struct {
	authority  string
	client     *http.Client
	refresh    time.Duration
	minRefresh time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	kf          keyfunc.Keyfunc
	storage     jwkset.Storage
	lastAttempt time.Time
	lastErr     error

	group singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

var _ KeySource = (*JWKSKeySource)(nil)

// JWKSOption applies a configuration option to the JWKSKeySource.
type JWKSOption func(*JWKSKeySource)

// WithHTTPClient sets the client used to talk to the issuer.
func WithHTTPClient(c *http.Client) JWKSOption {
	return func(s *JWKSKeySource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRefreshInterval sets how often the key set is refreshed in the background.
func WithRefreshInterval(d time.Duration) JWKSOption {
	return func(s *JWKSKeySource) {
		if d > 0 {
			s.refresh = d
		}
	}
}

// WithMinRefreshInterval throttles downloads caused by unknown key ids and
// by a key set that has never loaded.
func WithMinRefreshInterval(d time.Duration) JWKSOption {
	return func(s *JWKSKeySource) {
		if d >= 0 {
			s.minRefresh = d
		}
	}
}

// WithFetchTimeout bounds a single discovery or key set download.
func WithFetchTimeout(d time.Duration) JWKSOption {
	return func(s *JWKSKeySource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) JWKSOption {
	return func(s *JWKSKeySource) {
		if now != nil {
			s.now = now
		}
	}
}

// NewJWKSKeySource creates a key source for the issuer at authority.
// Nothing is fetched until the first Key or Prefetch call. Close stops the
// background refresh.
func NewJWKSKeySource(authority string, opts ...JWKSOption) *JWKSKeySource {
	s := &JWKSKeySource{
		authority:  strings.TrimRight(authority, "/"),
		client:     http.DefaultClient,
		refresh:    defaultRefreshInterval,
		minRefresh: defaultMinRefreshInterval,
		timeout:    defaultFetchTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Prefetch loads the key set once. Startup uses it to fail loudly on a
// misconfigured authority.
func (s *JWKSKeySource) Prefetch(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Close stops the background refresh.
func (s *JWKSKeySource) Close() error {
	s.cancel()
	return nil
}

// Key implements KeySource.
func (s *JWKSKeySource) Key(ctx context.Context, kid string) (any, error) {
	if _, err := s.load(ctx); err != nil {
		return nil, err
	}
	if kid == "" {
		return s.onlyKey(ctx)
	}

	jwk, err := s.keySet().KeyRead(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownKey, kid, err)
	}
	if use := jwk.Marshal().USE; use != "" && use != jwkset.UseSig {
		return nil, fmt.Errorf("%w: %q is not a signing key", ErrUnknownKey, kid)
	}
	return jwk.Key(), nil
}

// TokenKey resolves the key for t through keyfunc, which also checks that
// the token's alg matches the one published with the key.
func (s *JWKSKeySource) TokenKey(ctx context.Context, t *jwt.Token) (any, error) {
	kf, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return s.onlyKey(ctx)
	}
	key, err := kf.KeyfuncCtx(ctx)(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnknownKey, kid, err)
	}
	return key, nil
}

// onlyKey serves tokens without a kid when the issuer publishes one key.
func (s *JWKSKeySource) onlyKey(ctx context.Context) (any, error) {
	all, err := s.keySet().KeyReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownKey, err)
	}
	if len(all) != 1 {
		return nil, fmt.Errorf("%w: token has no kid and the issuer publishes %d keys", ErrUnknownKey, len(all))
	}
	return all[0].Key(), nil
}

func (s *JWKSKeySource) keySet() jwkset.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage
}

// load returns the keyfunc once the key set has loaded. Before that, at most
// one attempt per minimum refresh interval reaches the issuer; throttled
// callers get the last failure.
func (s *JWKSKeySource) load(ctx context.Context) (keyfunc.Keyfunc, error) {
	s.mu.RLock()
	kf, last, lastErr := s.kf, s.lastAttempt, s.lastErr
	s.mu.RUnlock()
	if kf != nil {
		return kf, nil
	}
	if !last.IsZero() && s.now().Sub(last) < s.minRefresh {
		if lastErr == nil {
			lastErr = ErrKeySetFetch
		}
		return nil, lastErr
	}

	v, err, _ := s.group.Do("jwks", func() (any, error) {
		s.mu.Lock()
		if s.kf != nil {
			kf := s.kf
			s.mu.Unlock()
			return kf, nil
		}
		s.lastAttempt = s.now()
		s.mu.Unlock()

		kf, storage, err := s.build(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			metrics.RecordKeySetError()
			s.lastErr = err
			return nil, err
		}
		s.kf, s.storage, s.lastErr = kf, storage, nil
		return kf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(keyfunc.Keyfunc), nil
}

func (s *JWKSKeySource) build(ctx context.Context) (_ keyfunc.Keyfunc, _ jwkset.Storage, err error) {
	log := logger.FromContext(ctx)

	// Background refresh of a failed attempt must not linger.
	runCtx, stop := context.WithCancel(s.ctx)
	defer func() {
		if err != nil {
			stop()
		}
	}()

	// The download outlives the request that triggered it.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var doc discoveryDocument
	if err := s.getJSON(fetchCtx, s.authority+discoveryPath, &doc); err != nil {
		return nil, nil, err
	}
	if doc.JWKSURI == "" {
		return nil, nil, fmt.Errorf("%w: discovery document has no jwks_uri", ErrKeySetFetch)
	}

	remote, err := jwkset.NewStorageFromHTTP(doc.JWKSURI, jwkset.HTTPClientStorageOptions{
		Client:          s.client,
		Ctx:             runCtx,
		HTTPTimeout:     s.timeout,
		RefreshInterval: s.refresh,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			metrics.RecordKeySetError()
			logger.FromContext(ctx).Warn(ctx, "signing key refresh failed, keeping previous keys",
				logger.String("jwks_uri", doc.JWKSURI),
				logger.Error(err),
			)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrKeySetFetch, doc.JWKSURI, err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		Given:             jwkset.NewMemoryStorage(),
		HTTPURLs:          map[string]jwkset.Storage{doc.JWKSURI: remote},
		RateLimitWaitMax:  unknownKIDWait,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(s.minRefresh), 1),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrKeySetFetch, err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:          runCtx,
		Storage:      storage,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrKeySetFetch, err)
	}

	all, err := storage.KeyReadAll(fetchCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrKeySetFetch, err)
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%w: no signing keys at %s", ErrKeySetFetch, doc.JWKSURI)
	}

	metrics.RecordKeySetRefresh(len(all))
	log.Info(ctx, "signing keys loaded",
		logger.String("authority", s.authority),
		logger.String("jwks_uri", doc.JWKSURI),
		logger.Int("keys", len(all)),
	)
	return kf, storage, nil
}

type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func (s *JWKSKeySource) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeySetFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeySetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: status %d", ErrKeySetFetch, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrKeySetFetch, url, err)
	}
	return nil
}
