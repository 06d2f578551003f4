package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/strangerchat-server/internal/metrics"
	"github.com/vovakirdan/strangerchat-server/internal/store"
)

// Reaper closes waiting rooms whose creator disconnected before anyone
// claimed them. Rooms younger than ttl are left alone.
type Reaper struct {
	store    store.RoomStore
	registry *Registry
	ttl      time.Duration
	log      *zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewReaper builds a reaper.
func NewReaper(st store.RoomStore, registry *Registry, ttl time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *Reaper {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reaper{store: st, registry: registry, ttl: ttl, log: logger, metrics: m, now: time.Now}
}

// Sweep runs one pass and returns the number of rooms closed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	rooms, err := r.store.ListRooms(ctx, store.RoomFilter{
		Status:        store.RoomStatusWaiting,
		CreatedBefore: r.now().Add(-r.ttl),
	})
	if err != nil {
		return 0, fmt.Errorf("list waiting rooms: %w", err)
	}

	reaped := 0
	for _, room := range rooms {
		online, err := r.registry.IsOnline(ctx, room.ParticipantA)
		if err != nil {
			return reaped, fmt.Errorf("check presence: %w", err)
		}
		if online {
			continue
		}
		ok, err := r.store.AbandonWaiting(ctx, room.Token)
		if err != nil {
			return reaped, fmt.Errorf("abandon room %s: %w", room.Token, err)
		}
		if ok {
			reaped++
			r.log.Debug().Str("room", room.Token).Msg("reaped abandoned waiting room")
		}
	}

	r.metrics.RoomsReaped(reaped)
	return reaped, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.log.Warn().Err(err).Msg("reaper sweep failed")
				continue
			}
			if n > 0 {
				r.log.Info().Int("rooms", n).Msg("reaped abandoned waiting rooms")
			}
		}
	}
}
