package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fracvault/native/vault"
)

var (
	ErrPoolUnknown   = errors.New("oracle: pool not tracked")
	ErrStaleSnapshot = errors.New("oracle: snapshot is stale")
)

// Snapshot is a market reading for a fraction pool. TWAPPrice is in integer
// micro-units of the quote asset per fraction; the percentages are relative to
// the pool's baseline at fractionalization.
type Snapshot struct {
	TWAPPrice        uint64
	LiquidityPercent uint64
	VolumePercent30d uint64
	PoolAgeSeconds   int64
	ObservedAt       time.Time
	Source           string
}

// Pool projects the snapshot onto the fields consumed by the eligibility
// evaluator.
func (s Snapshot) Pool() vault.PoolSnapshot {
	return vault.PoolSnapshot{
		PoolAgeSeconds:   s.PoolAgeSeconds,
		LiquidityPercent: s.LiquidityPercent,
		VolumePercent30d: s.VolumePercent30d,
	}
}

// Oracle reports market readings for a fraction pool.
type Oracle interface {
	Snapshot(ctx context.Context, pool [32]byte) (Snapshot, error)
}

// Fresh wraps an oracle and rejects snapshots older than maxAge. A zero maxAge
// disables the check.
type Fresh struct {
	inner  Oracle
	maxAge time.Duration
	now    func() time.Time
}

// NewFresh constructs a staleness filter around inner.
func NewFresh(inner Oracle, maxAge time.Duration) *Fresh {
	return &Fresh{inner: inner, maxAge: maxAge, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (f *Fresh) SetClock(now func() time.Time) {
	if now != nil {
		f.now = now
	}
}

func (f *Fresh) Snapshot(ctx context.Context, pool [32]byte) (Snapshot, error) {
	snap, err := f.inner.Snapshot(ctx, pool)
	if err != nil {
		return Snapshot{}, err
	}
	if f.maxAge > 0 && !snap.ObservedAt.IsZero() && f.now().Sub(snap.ObservedAt) > f.maxAge {
		return Snapshot{}, fmt.Errorf("%w: observed %s", ErrStaleSnapshot, snap.ObservedAt.UTC().Format(time.RFC3339))
	}
	return snap, nil
}

// Manual is an in-memory oracle used for tests and operator overrides.
type Manual struct {
	mu    sync.RWMutex
	pools map[[32]byte]Snapshot
}

// NewManual constructs an empty manual oracle.
func NewManual() *Manual {
	return &Manual{pools: make(map[[32]byte]Snapshot)}
}

// Set records the snapshot for pool.
func (m *Manual) Set(pool [32]byte, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Source == "" {
		snap.Source = "manual"
	}
	m.pools[pool] = snap
}

func (m *Manual) Snapshot(ctx context.Context, pool [32]byte) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	snap, ok := m.pools[pool]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %x", ErrPoolUnknown, pool)
	}
	return snap, nil
}
