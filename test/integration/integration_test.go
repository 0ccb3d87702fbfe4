package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/transitwatch/stophistory/pkg/stophistory"
	"github.com/transitwatch/stophistory/pkg/storage"
	"github.com/transitwatch/stophistory/pkg/transit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRedis launches a throwaway Redis container and returns a store
// connected to it.
func startRedis(t *testing.T, ctx context.Context) *storage.RedisStore {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	addr := strings.TrimPrefix(uri, "redis://")

	store, err := storage.NewRedisStore(addr, "", 0)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	return store
}

// TestHistoryCacheOnRedis runs the cache against a real Redis instance.
func TestHistoryCacheOnRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	store := startRedis(t, ctx)

	t.Run("AppendAndRead", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{Prefix: "IT1"}, testLogger())

		at := time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC)
		key, err := cache.Append(ctx, transit.ArrivalDeparture{
			StopID:    "42",
			EventTime: at,
			Kind:      transit.Arrival,
			VehicleID: "bus-7",
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got := key.StoreKey("IT1"); got != "IT1_42_20240301" {
			t.Errorf("key = %q, want %q", got, "IT1_42_20240301")
		}

		events, err := cache.Read(ctx, "42", time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].VehicleID != "bus-7" {
			t.Errorf("payload lost in round-trip: %+v", events[0])
		}
		if !events[0].EventTime.Equal(at) {
			t.Errorf("event time = %v, want %v", events[0].EventTime, at)
		}
	})

	t.Run("SortedAcrossAppends", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{Prefix: "IT2"}, testLogger())

		day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for _, minutes := range []int{495, 485, 510} { // 08:15, 08:05, 08:30
			_, err := cache.Append(ctx, transit.ArrivalDeparture{
				StopID:    "42",
				EventTime: day.Add(time.Duration(minutes) * time.Minute),
				Kind:      transit.Arrival,
			})
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}

		events, err := cache.Read(ctx, "42", day.Add(12*time.Hour))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		want := []string{"08:05", "08:15", "08:30"}
		if len(events) != len(want) {
			t.Fatalf("got %d events, want %d", len(events), len(want))
		}
		for i, w := range want {
			if got := events[i].EventTime.UTC().Format("15:04"); got != w {
				t.Errorf("events[%d] at %s, want %s", i, got, w)
			}
		}
	})

	t.Run("ConcurrentAppendsNoLostUpdates", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{
			Prefix:     "IT3",
			MaxRetries: 10,
		}, testLogger())

		const writers = 12
		day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := cache.Append(ctx, transit.ArrivalDeparture{
					StopID:    "9",
					EventTime: day.Add(time.Duration(n) * time.Second),
					Kind:      transit.Arrival,
					VehicleID: fmt.Sprintf("bus-%d", n),
				})
				if err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("concurrent Append() error = %v", err)
		}

		events, err := cache.Read(ctx, "9", day)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(events) != writers {
			t.Fatalf("got %d events after %d concurrent appends, want all of them (lost update)", len(events), writers)
		}

		seen := make(map[string]bool)
		for i, ev := range events {
			if seen[ev.VehicleID] {
				t.Errorf("event %s duplicated", ev.VehicleID)
			}
			seen[ev.VehicleID] = true
			if i > 0 && ev.EventTime.Before(events[i-1].EventTime) {
				t.Error("history not sorted ascending")
			}
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{
			Prefix: "IT4",
			TTL:    2 * time.Second,
		}, testLogger())

		at := time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC)
		if _, err := cache.Append(ctx, transit.ArrivalDeparture{
			StopID:    "42",
			EventTime: at,
			Kind:      transit.Arrival,
		}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		if events, _ := cache.Read(ctx, "42", at); len(events) != 1 {
			t.Fatalf("entry should be present before expiry")
		}

		time.Sleep(3 * time.Second)

		events, err := cache.Read(ctx, "42", at)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(events) != 0 {
			t.Errorf("got %d events after TTL elapsed, want 0", len(events))
		}
	})

	t.Run("MidnightBoundary", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{Prefix: "IT5"}, testLogger())

		key, err := cache.Append(ctx, transit.ArrivalDeparture{
			StopID:    "42",
			EventTime: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
			Kind:      transit.Departure,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got := key.StoreKey("IT5"); got != "IT5_42_20240302" {
			t.Errorf("key = %q, want %q (midnight starts the new day)", got, "IT5_42_20240302")
		}

		if events, _ := cache.Read(ctx, "42", time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)); len(events) != 0 {
			t.Errorf("midnight event leaked into the prior day")
		}
	})

	t.Run("CorruptEntrySurfacesError", func(t *testing.T) {
		cache := stophistory.New(store, stophistory.Config{Prefix: "IT6"}, testLogger())

		if err := store.Set(ctx, "IT6_42_20240301", []byte("{not json"), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		_, err := cache.Read(ctx, "42", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
		if err == nil {
			t.Fatal("expected serialization error for corrupt entry, got nil")
		}
	})
}
