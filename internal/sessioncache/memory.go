package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Second

	// DefaultSweepFraction is the share of entries examined per sweep round.
	DefaultSweepFraction = 0.25

	// minSweepSample keeps small caches fully scanned each round.
	minSweepSample = 64

	// maxSweepRounds bounds how long one tick may keep sweeping when most
	// sampled entries turn out to be expired.
	maxSweepRounds = 8
)

type entry struct {
	value     string
	createdAt time.Time
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. A single sweep goroutine is started by
// NewMemoryStore and stopped by Close.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool

	clock         clock.Clock
	sweepInterval time.Duration
	sweepFraction float64
	logger        *zap.SugaredLogger

	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for expiry and the sweep ticker.
func WithClock(c clock.Clock) MemoryOption {
	return func(s *MemoryStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSweepInterval sets a custom sweep interval.
func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithSweepFraction sets the share of entries examined per sweep round, in (0, 1].
func WithSweepFraction(fraction float64) MemoryOption {
	return func(s *MemoryStore) {
		if fraction > 0 && fraction <= 1 {
			s.sweepFraction = fraction
		}
	}
}

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(logger *zap.SugaredLogger) MemoryOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryStore creates the store and starts its sweep goroutine.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]entry),
		clock:         clock.New(),
		sweepInterval: DefaultSweepInterval,
		sweepFraction: DefaultSweepFraction,
		logger:        zap.NewNop().Sugar(),
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// The ticker is created before the goroutine so that a mock clock
	// advanced right after construction still fires it.
	ticker := s.clock.Ticker(s.sweepInterval)
	go s.sweepLoop(ticker)

	return s
}

func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries[key] = entry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)
	if e.expired(now) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Health fails only after Close.
func (s *MemoryStore) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the sweep goroutine and waits for it to exit.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopSweep)
		<-s.sweepDone

		s.mu.Lock()
		s.closed = true
		s.entries = make(map[string]entry)
		s.mu.Unlock()
	})
	return nil
}

func (s *MemoryStore) sweepLoop(ticker *clock.Ticker) {
	defer close(s.sweepDone)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				s.logger.Debugw("swept expired session cache entries", "removed", removed)
			}
		}
	}
}

// sweep runs sampling rounds until a round finds at most a quarter of its
// sample expired, or maxSweepRounds is reached.
func (s *MemoryStore) sweep() int {
	total := 0
	for round := 0; round < maxSweepRounds; round++ {
		select {
		case <-s.stopSweep:
			return total
		default:
		}
		scanned, removed := s.sweepRound(s.clock.Now())
		total += removed
		if scanned == 0 || removed*4 <= scanned {
			break
		}
	}
	return total
}

// sweepRound examines a bounded sample of entries and deletes the expired
// ones. Map iteration order is randomized, so successive rounds sample
// different entries.
func (s *MemoryStore) sweepRound(now time.Time) (scanned, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget := s.sampleSize()
	for key, e := range s.entries {
		if scanned >= budget {
			break
		}
		scanned++
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return scanned, removed
}

// sampleSize must be called with s.mu held.
func (s *MemoryStore) sampleSize() int {
	n := int(float64(len(s.entries)) * s.sweepFraction)
	if n < minSweepSample {
		n = minSweepSample
	}
	return n
}
