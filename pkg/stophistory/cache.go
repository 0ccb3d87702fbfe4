// Package stophistory implements the per-stop arrival/departure history
// cache: a time-ordered list of observed events for each (stop, calendar day)
// pair, persisted in an external key-value store with a bounded lifetime.
//
// The cache is an acceleration layer in front of durable storage, not a
// replacement for it. Each append performs a read-modify-write against the
// store using optimistic concurrency: a conditional write that loses the race
// against another writer is retried with backoff, so concurrent appends to
// the same key never lose events.
package stophistory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/transitwatch/stophistory/pkg/storage"
	"github.com/transitwatch/stophistory/pkg/transit"
)

// Config carries the cache's tunables. Construct once and pass to New;
// there are no process-global settings.
type Config struct {
	// Prefix namespaces this cache's keys in the shared store.
	Prefix string

	// TTL is the storage lifetime reset by every successful append. It is a
	// lifetime hint decoupled from the entry's logical day: a recently
	// written old-day entry stays readable, an untouched same-day entry
	// expires.
	TTL time.Duration

	// Location is the platform's reference timezone for day truncation.
	Location *time.Location

	// StoreTimeout bounds each store round-trip.
	StoreTimeout time.Duration

	// MaxRetries is the number of additional append attempts after a
	// conditional-write conflict. Zero means the default; a negative value
	// disables retries, so the first conflict surfaces immediately.
	MaxRetries int

	// RetryBackoff is the initial delay between conflicting append attempts,
	// doubled per retry. Zero means the default; a negative value retries
	// without delay.
	RetryBackoff time.Duration

	// DegradeReads makes Read return an empty history with a warning log
	// when the store is unreachable, instead of surfacing the error. Off by
	// default: outages should be visible.
	DegradeReads bool
}

const (
	defaultPrefix       = "STOPAD"
	defaultTTL          = 24 * time.Hour
	defaultStoreTimeout = 2 * time.Second
	defaultMaxRetries   = 3
	defaultRetryBackoff = 25 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.TTL <= 0 {
		c.TTL = defaultTTL
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	return c
}

// Cache accumulates arrival/departure events per (stop, day) key and serves
// recent history to prediction and reporting consumers. Safe for concurrent
// use; the store round-trips on every call since the store is the source of
// truth shared across processes.
type Cache struct {
	store  storage.Store
	cfg    Config
	logger *slog.Logger
}

// New creates a cache over store. Zero-valued Config fields fall back to
// defaults (prefix STOPAD, 24h TTL, UTC reference timezone, 2s store
// timeout, 3 retries).
func New(store storage.Store, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// TTL returns the configured storage lifetime.
func (c *Cache) TTL() time.Duration {
	return c.cfg.TTL
}

// Prefix returns the configured store key namespace.
func (c *Cache) Prefix() string {
	return c.cfg.Prefix
}

// Location returns the reference timezone used for key normalization.
func (c *Cache) Location() *time.Location {
	return c.cfg.Location
}

// Read returns the day history for stopID on the calendar day containing at,
// sorted ascending by event time. An absent entry is an empty history with a
// nil error; store failures and undecodable entries are errors, unless
// DegradeReads is set, in which case unreachable-store reads degrade to an
// empty history with a warning.
func (c *Cache) Read(ctx context.Context, stopID string, at time.Time) ([]transit.ArrivalDeparture, error) {
	key, err := NormalizeKey(stopID, at, c.cfg.Location)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	data, found, err := c.store.Get(opCtx, key.StoreKey(c.cfg.Prefix))
	if err != nil {
		if c.cfg.DegradeReads {
			c.logger.Warn("degrading read to empty history, store unreachable",
				"stop", stopID,
				"day", key.Day.Format(dayFormat),
				"error", err,
			)
			return []transit.ArrivalDeparture{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if !found {
		return []transit.ArrivalDeparture{}, nil
	}

	events, err := decodeHistory(data)
	if err != nil {
		// Corrupt entries must be distinguishable from "no data yet".
		return nil, err
	}
	return events, nil
}

// Append incorporates one event into its day history and returns the key it
// was stored under. The full read-modify-write cycle runs against the store
// with a conditional write; a lost race is retried up to MaxRetries times
// with doubling backoff before surfacing ErrConflict. Every successful
// append resets the entry's TTL.
func (c *Cache) Append(ctx context.Context, ev transit.ArrivalDeparture) (Key, error) {
	if err := ev.Validate(); err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	key, err := NormalizeKey(ev.StopID, ev.EventTime, c.cfg.Location)
	if err != nil {
		return Key{}, err
	}

	storeKey := key.StoreKey(c.cfg.Prefix)
	merge := func(current []byte, found bool) ([]byte, error) {
		var events []transit.ArrivalDeparture
		if found {
			var err error
			events, err = decodeHistory(current)
			if err != nil {
				return nil, err
			}
		}

		// Seq continues from the history's high-water mark, so the
		// equal-timestamp tie-break stays deterministic across process
		// restarts. Recomputed on every attempt against the fresh history.
		next := ev
		if next.Seq == 0 {
			var maxSeq uint64
			for _, e := range events {
				if e.Seq > maxSeq {
					maxSeq = e.Seq
				}
			}
			next.Seq = maxSeq + 1
		}

		events = append(events, next)
		transit.SortHistory(events)
		return encodeHistory(events)
	}

	for attempt := 0; ; attempt++ {
		err := c.update(ctx, storeKey, merge)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return Key{}, err
		}
		if attempt >= c.cfg.MaxRetries {
			return Key{}, fmt.Errorf("%w: key %s after %d attempts", ErrConflict, key, attempt+1)
		}

		backoff := c.cfg.RetryBackoff << attempt
		c.logger.Debug("append conflict, retrying",
			"key", key.String(),
			"attempt", attempt+1,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return Key{}, fmt.Errorf("%w: %v", ErrStoreUnreachable, ctx.Err())
		case <-time.After(backoff):
		}
	}
}

// update runs a single conditional read-modify-write attempt, classifying
// transport failures as ErrStoreUnreachable while passing through
// serialization failures and conflicts.
func (c *Cache) update(ctx context.Context, storeKey string, merge storage.UpdateFunc) error {
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()

	err := c.store.Update(opCtx, storeKey, c.cfg.TTL, merge)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrConflict):
		return err
	case errors.Is(err, ErrSerialization):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
}
