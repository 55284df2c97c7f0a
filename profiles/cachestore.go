// Package profiles implements cache-aside access to user profiles. The
// durable store is the source of truth; the cache holds a time-bounded copy
// that is refreshed on read misses and written through on every write.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"accounts-service/models"
	"accounts-service/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 300 * time.Second
	DefaultKeyPrefix    = "user_profile_"
	DefaultStoreTimeout = 5 * time.Second
	DefaultCacheTimeout = 500 * time.Millisecond

	instrumentationName = "accounts-service/profiles"
)

var hashPassword = utils.HashPassword

// Store is the durable profile store.
type Store interface {
	// FindByUsername returns models.ErrNotFound for unknown usernames.
	FindByUsername(ctx context.Context, username string) (models.Profile, error)
	Upsert(ctx context.Context, profile models.Profile) (models.Profile, error)
	// Insert returns models.ErrAlreadyExists when username is taken.
	Insert(ctx context.Context, profile models.Profile, passwordHash string) (models.Profile, error)
}

// Cache holds serialized profiles with an expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent stores value only when key holds no entry and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Options struct {
	TTL          time.Duration
	KeyPrefix    string
	StoreTimeout time.Duration
	CacheTimeout time.Duration
}

// CacheStore serves profile reads from the cache when possible and keeps the
// cache in step with every successful write. It is safe for concurrent use.
type CacheStore struct {
	store Store
	cache Cache
	opts  Options

	misses  singleflight.Group
	tracer  trace.Tracer
	metrics cacheMetrics
}

func NewCacheStore(store Store, cache Cache, opts Options) *CacheStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = DefaultCacheTimeout
	}
	return &CacheStore{
		store:   store,
		cache:   cache,
		opts:    opts,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newCacheMetrics(otel.Meter(instrumentationName)),
	}
}

// Key returns the cache key for username.
func (s *CacheStore) Key(username string) string {
	return s.opts.KeyPrefix + username
}

// Get returns the profile for username, from the cache when a live entry
// exists and from the durable store otherwise. Not-found results are never
// cached.
func (s *CacheStore) Get(ctx context.Context, username string) (profile models.Profile, err error) {
	ctx, span := s.startSpan(ctx, "profiles.Get", username)
	defer func() { endSpan(span, err) }()

	if username == "" {
		return models.Profile{}, &models.ValidationError{Fields: []string{"username"}}
	}

	if cached, ok := s.readCache(ctx, username); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Concurrent misses for one username share a single store read, detached
	// from any one caller's cancellation.
	result := s.misses.DoChan(username, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		return s.load(loadCtx, username)
	})

	select {
	case <-ctx.Done():
		return models.Profile{}, fmt.Errorf("get profile %q: %w", username, ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return models.Profile{}, res.Err
		}
		return res.Val.(models.Profile), nil
	}
}

// Update replaces the profile's fields in the durable store, creating the
// profile if needed, then writes the stored value through to the cache.
func (s *CacheStore) Update(ctx context.Context, in models.UpdateProfileInput) (profile models.Profile, err error) {
	ctx, span := s.startSpan(ctx, "profiles.Update", in.Username)
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return models.Profile{}, err
	}
	input := in.Profile()

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	stored, err := s.store.Upsert(storeCtx, input)
	if err != nil {
		return models.Profile{}, s.storeFailure("update", input.Username, err)
	}

	s.writeThrough(ctx, stored)
	log.Printf("profile updated username=%s", stored.Username)
	return stored, nil
}

// Create inserts a new profile with a hashed password and caches it. The
// durable store's uniqueness constraint decides races between concurrent
// creates of the same username.
func (s *CacheStore) Create(ctx context.Context, in models.CreateProfileInput) (profile models.Profile, err error) {
	ctx, span := s.startSpan(ctx, "profiles.Create", in.Username)
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return models.Profile{}, err
	}
	input := in.Profile()

	passwordHash, err := hashPassword(in.Password)
	if err != nil {
		return models.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	stored, err := s.store.Insert(storeCtx, input, passwordHash)
	if err != nil {
		return models.Profile{}, s.storeFailure("create", input.Username, err)
	}

	s.populate(ctx, stored)
	log.Printf("profile created username=%s", stored.Username)
	return stored, nil
}

func (s *CacheStore) load(ctx context.Context, username string) (models.Profile, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	stored, err := s.store.FindByUsername(storeCtx, username)
	if err != nil {
		return models.Profile{}, s.storeFailure("get", username, err)
	}
	s.fill(ctx, stored)
	return stored, nil
}

func (s *CacheStore) readCache(ctx context.Context, username string) (models.Profile, bool) {
	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()

	raw, found, err := s.cache.Get(cacheCtx, s.Key(username))
	if err != nil {
		s.cacheFailure(ctx, "get", username, err)
		s.metrics.miss(ctx)
		return models.Profile{}, false
	}
	if !found {
		s.metrics.miss(ctx)
		return models.Profile{}, false
	}

	var profile models.Profile
	if err := json.Unmarshal(raw, &profile); err != nil || profile.Username != username {
		s.cacheFailure(ctx, "decode", username, fmt.Errorf("undecodable or mismatched entry %q", s.Key(username)))
		s.metrics.miss(ctx)
		s.drop(ctx, username)
		return models.Profile{}, false
	}
	s.metrics.hit(ctx)
	return profile, true
}

// populate stores profile in the cache, replacing any entry. Failures are
// logged only.
func (s *CacheStore) populate(ctx context.Context, profile models.Profile) bool {
	raw, err := json.Marshal(profile)
	if err != nil {
		s.cacheFailure(ctx, "encode", profile.Username, err)
		return false
	}

	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.Set(cacheCtx, s.Key(profile.Username), raw, s.opts.TTL); err != nil {
		s.cacheFailure(ctx, "set", profile.Username, err)
		return false
	}
	return true
}

// fill caches a profile read on a miss. It never replaces an existing entry:
// a write that landed between the store read and now has already cached a
// newer value.
func (s *CacheStore) fill(ctx context.Context, profile models.Profile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		s.cacheFailure(ctx, "encode", profile.Username, err)
		return
	}

	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()
	stored, err := s.cache.SetIfAbsent(cacheCtx, s.Key(profile.Username), raw, s.opts.TTL)
	if err != nil {
		s.cacheFailure(ctx, "fill", profile.Username, err)
		return
	}
	if !stored {
		log.Printf("profile cache fill skipped username=%s reason=entry_present", profile.Username)
	}
}

func (s *CacheStore) drop(ctx context.Context, username string) {
	cacheCtx, cancel := s.cacheContext(ctx)
	defer cancel()
	if err := s.cache.Delete(cacheCtx, s.Key(username)); err != nil {
		s.cacheFailure(ctx, "delete", username, err)
	}
}

// writeThrough overwrites the cached entry after a write. If that fails the
// old entry is dropped so readers fall through to the store instead of
// seeing the pre-write value for the rest of its TTL.
func (s *CacheStore) writeThrough(ctx context.Context, profile models.Profile) {
	if s.populate(ctx, profile) {
		return
	}
	s.drop(ctx, profile.Username)
}

func (s *CacheStore) storeFailure(operation, username string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrAlreadyExists):
		return err
	}
	log.Printf("profile store error operation=%s username=%s err=%v", operation, username, err)
	return fmt.Errorf("%s profile %q: %w: %v", operation, username, models.ErrStoreUnavailable, err)
}

func (s *CacheStore) cacheFailure(ctx context.Context, operation, username string, err error) {
	s.metrics.failure(ctx, operation)
	log.Printf("profile cache degraded operation=%s username=%s err=%v", operation, username, err)
}

// storeContext bounds one store round trip. Miss loads run detached from the
// caller, so this is their only deadline.
func (s *CacheStore) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *CacheStore) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.CacheTimeout)
}

func (s *CacheStore) startSpan(ctx context.Context, name, username string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("profile.username", username)))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !models.IsValidation(err) && !errors.Is(err, models.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type cacheMetrics struct {
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	failures metric.Int64Counter
}

func newCacheMetrics(meter metric.Meter) cacheMetrics {
	return cacheMetrics{
		hits:     counter(meter, "profile.cache.hits", "Profile reads served from the cache"),
		misses:   counter(meter, "profile.cache.misses", "Profile reads that fell through to the store"),
		failures: counter(meter, "profile.cache.failures", "Cache operations that failed and were skipped"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Printf("profile metrics disabled instrument=%s err=%v", name, err)
		return noop.Int64Counter{}
	}
	return c
}

func (m cacheMetrics) hit(ctx context.Context) {
	m.hits.Add(ctx, 1)
}

func (m cacheMetrics) miss(ctx context.Context) {
	m.misses.Add(ctx, 1)
}

func (m cacheMetrics) failure(ctx context.Context, operation string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
