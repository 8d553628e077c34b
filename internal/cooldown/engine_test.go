package cooldown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"violation-service/internal/domain/violation"
)

var t0 = time.Date(2025, 12, 21, 23, 20, 17, 0, time.UTC)

func confirmed(typ violation.Type, vehicle violation.VehicleIdentity, at time.Time) violation.Confirmed {
	return violation.Confirmed{Type: typ, VehicleIdentity: vehicle, Timestamp: at}
}

func TestShouldSuppressPlatedVehicle(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryStore(), 30*time.Second, zerolog.Nop())
	plated := violation.VehicleIdentity("LP_20251221_232017")

	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypeNoHelmet, plated, t0)))

	tests := []struct {
		name     string
		typ      violation.Type
		vehicle  violation.VehicleIdentity
		at       time.Time
		expected bool
	}{
		{"same vehicle inside window", violation.TypeNoHelmet, plated, t0.Add(10 * time.Second), true},
		{"same vehicle at window edge", violation.TypeNoHelmet, plated, t0.Add(30 * time.Second), true},
		{"same vehicle after window", violation.TypeNoHelmet, plated, t0.Add(31 * time.Second), false},
		{"other vehicle inside window", violation.TypeNoHelmet, "LP_20251221_232020", t0.Add(3 * time.Second), false},
		{"other type inside window", violation.TypePhoneUsage, plated, t0.Add(10 * time.Second), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, e.ShouldSuppress(ctx, test.typ, test.vehicle, test.at))
		})
	}
}

func TestShouldSuppressSyntheticIsTypeOnly(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryStore(), 30*time.Second, zerolog.Nop())

	first := violation.VehicleIdentity("VEH_20251221232017000001")
	second := violation.VehicleIdentity("VEH_20251221232022000002")
	third := violation.VehicleIdentity("VEH_20251221232029000003")

	assert.False(t, e.ShouldSuppress(ctx, violation.TypePhoneUsage, first, t0))
	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypePhoneUsage, first, t0)))

	assert.True(t, e.ShouldSuppress(ctx, violation.TypePhoneUsage, second, t0.Add(5*time.Second)))
	assert.True(t, e.ShouldSuppress(ctx, violation.TypePhoneUsage, third, t0.Add(12*time.Second)))
	assert.False(t, e.ShouldSuppress(ctx, violation.TypePhoneUsage, third, t0.Add(45*time.Second)))
}

func TestShouldSuppressSyntheticMatchesPlatedEntries(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryStore(), 30*time.Second, zerolog.Nop())

	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypeTripleRiding, "LP_20251221_232017", t0)))

	assert.True(t, e.ShouldSuppress(ctx, violation.TypeTripleRiding, "VEH_20251221232020000000", t0.Add(3*time.Second)))
}

type failingStore struct{ *MemoryStore }

func (failingStore) Exists(context.Context, violation.Type, violation.VehicleIdentity, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func TestShouldSuppressAdmitsOnStoreError(t *testing.T) {
	e := NewEngine(failingStore{NewMemoryStore()}, 30*time.Second, zerolog.Nop())

	assert.False(t, e.ShouldSuppress(context.Background(), violation.TypeNoHelmet, "LP_x", t0))
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, 30*time.Second, zerolog.Nop())

	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypeNoHelmet, "VEH_1", t0)))
	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypePhoneUsage, "VEH_2", t0.Add(20*time.Second))))
	require.NoError(t, e.RecordConfirmed(ctx, confirmed(violation.TypeNoHelmet, "VEH_3", t0.Add(40*time.Second))))

	pruned, err := e.Prune(ctx, t0.Add(55*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
	assert.Equal(t, 1, store.Len())

	assert.True(t, e.ShouldSuppress(ctx, violation.TypeNoHelmet, "VEH_4", t0.Add(55*time.Second)))
	assert.False(t, e.ShouldSuppress(ctx, violation.TypePhoneUsage, "VEH_4", t0.Add(55*time.Second)))
}

func TestNewEngineDefaultWindow(t *testing.T) {
	e := NewEngine(NewMemoryStore(), 0, zerolog.Nop())
	assert.Equal(t, DefaultWindow, e.Window())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewEngine(NewMemoryStore(), 30*time.Second, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, 30*time.Second, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vehicle := violation.VehicleIdentity(fmt.Sprintf("LP_%d", i))
			at := t0.Add(time.Duration(i) * time.Millisecond)
			if !e.ShouldSuppress(ctx, violation.TypeNoHelmet, vehicle, at) {
				_ = e.RecordConfirmed(ctx, confirmed(violation.TypeNoHelmet, vehicle, at))
			}
			_, _ = e.Prune(ctx, at)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
}
