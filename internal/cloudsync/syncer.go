package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/quietlabs/engram/internal/observe"
	"github.com/quietlabs/engram/pkg/types"
)

var (
	// ErrCircuitOpen is returned when the breaker rejects a round because
	// the transport has been failing.
	ErrCircuitOpen = errors.New("cloudsync: circuit breaker is open")

	// ErrRateLimited is returned when a round is requested sooner than the
	// minimum gap allows.
	ErrRateLimited = errors.New("cloudsync: sync rate limit exceeded")
)

const (
	// DefaultInterval between background sync rounds.
	DefaultInterval = 30 * time.Minute

	// defaultMinRoundGap floors how often rounds may run regardless of
	// manual triggers.
	defaultMinRoundGap = time.Minute

	breakerMaxFailures  = 3
	breakerOpenTimeout  = 30 * time.Second
	breakerHalfOpenMax  = 2
)

// Local is the slice of the memory manager the syncer needs.
type Local interface {
	// Get returns (nil, nil) when the id does not exist locally.
	Get(ctx context.Context, id string) (*types.MemoryItem, error)

	// Store upserts an item, preserving its id and timestamps.
	Store(ctx context.Context, item *types.MemoryItem) (*types.MemoryItem, error)

	// ChangedSince lists items modified after since.
	ChangedSince(ctx context.Context, since time.Time) ([]*types.MemoryItem, error)
}

// Report summarizes one sync round.
type Report struct {
	Pulled        int       `json:"pulled"`
	Pushed        int       `json:"pushed"`
	Conflicts     int       `json:"conflicts"`
	SkippedManual int       `json:"skipped_manual"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Options configures a Syncer.
type Options struct {
	// Resolver picks conflict winners. Defaults to LastModifiedWins.
	Resolver *Resolver

	// MinRoundGap floors the time between rounds. Defaults to one minute.
	MinRoundGap time.Duration

	Observer *observe.Observer
}

// Syncer runs sync rounds against a Transport. The transport sits behind a
// circuit breaker so a dead remote stops costing a full round of failures,
// and a rate limiter bounds round frequency even under manual triggering.
// Rounds are serialized; lastSync only advances after a successful round.
type Syncer struct {
	local     Local
	transport Transport
	resolver  *Resolver
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	obs       *observe.Observer

	mu       sync.Mutex
	lastSync time.Time
}

// NewSyncer wires a syncer over the local store and transport.
func NewSyncer(local Local, transport Transport, opts Options) (*Syncer, error) {
	if local == nil || transport == nil {
		return nil, fmt.Errorf("cloudsync: local store and transport are required")
	}

	resolver := opts.Resolver
	if resolver == nil {
		var err error
		resolver, err = NewResolver(LastModifiedWins)
		if err != nil {
			return nil, err
		}
	}

	gap := opts.MinRoundGap
	if gap <= 0 {
		gap = defaultMinRoundGap
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cloudsync",
		MaxRequests: breakerHalfOpenMax,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
	})

	return &Syncer{
		local:     local,
		transport: transport,
		resolver:  resolver,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Every(gap), 1),
		obs:       opts.Observer,
	}, nil
}

// LastSync returns when the last successful round completed.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// SyncOnce runs a single round: pull remote changes, resolve conflicts,
// store winners locally, and push local changes plus conflict winners.
// Manual-resolution conflicts are counted and skipped, never fatal.
func (s *Syncer) SyncOnce(ctx context.Context) (*Report, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	s.mu.Lock()
	since := s.lastSync
	s.mu.Unlock()

	// Snapshot local changes before applying remote ones, so the items we
	// just wrote from the remote are not echoed straight back. Conflicted
	// ids are re-decided below; pushing the pre-conflict local copy would
	// clobber a winning remote edit.
	changed, err := s.local.ChangedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("cloudsync: list local changes: %w", err)
	}
	pushSet := make(map[string]*types.MemoryItem, len(changed))
	for _, item := range changed {
		pushSet[item.ID] = item
	}

	remote, err := s.pull(ctx, since)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, remoteItem := range remote {
		localItem, err := s.local.Get(ctx, remoteItem.ID)
		if err != nil {
			return nil, fmt.Errorf("cloudsync: read local %s: %w", remoteItem.ID, err)
		}

		if localItem == nil {
			if _, err := s.local.Store(ctx, remoteItem); err != nil {
				return nil, fmt.Errorf("cloudsync: store remote %s: %w", remoteItem.ID, err)
			}
			report.Pulled++
			continue
		}

		report.Conflicts++
		winner, err := s.resolver.Resolve(localItem, remoteItem)
		if err != nil {
			if errors.Is(err, ErrManualResolution) {
				report.SkippedManual++
				delete(pushSet, remoteItem.ID)
				if s.obs != nil {
					s.obs.Log().Warn().Str("id", remoteItem.ID).Msg("conflict left for manual resolution")
				}
				continue
			}
			return nil, err
		}

		if _, err := s.local.Store(ctx, winner); err != nil {
			return nil, fmt.Errorf("cloudsync: store winner %s: %w", winner.ID, err)
		}
		// The remote side needs the winner too, unless it already has it.
		if !winner.LastAccessed.Equal(remoteItem.LastAccessed) || winner.Content != remoteItem.Content {
			pushSet[winner.ID] = winner
		} else {
			delete(pushSet, winner.ID)
		}
	}

	if len(pushSet) > 0 {
		toPush := make([]*types.MemoryItem, 0, len(pushSet))
		for _, item := range pushSet {
			toPush = append(toPush, item)
		}
		sort.Slice(toPush, func(i, j int) bool { return toPush[i].ID < toPush[j].ID })

		if err := s.push(ctx, toPush); err != nil {
			return nil, err
		}
		report.Pushed = len(toPush)
	}

	report.CompletedAt = time.Now().UTC()
	s.mu.Lock()
	s.lastSync = report.CompletedAt
	s.mu.Unlock()

	if s.obs != nil {
		s.obs.Log().Info().
			Int("pulled", report.Pulled).
			Int("pushed", report.Pushed).
			Int("conflicts", report.Conflicts).
			Int("skipped_manual", report.SkippedManual).
			Msg("sync round complete")
	}

	return report, nil
}

// Run syncs on the given interval until ctx is cancelled. Failed rounds are
// logged; the schedule continues.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncOnce(ctx); err != nil && s.obs != nil {
				s.obs.Log().Error().Err(err).Msg("sync round failed")
			}
		}
	}
}

func (s *Syncer) pull(ctx context.Context, since time.Time) ([]*types.MemoryItem, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.transport.Pull(ctx, since)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, fmt.Errorf("cloudsync: pull: %w", err)
	}
	return result.([]*types.MemoryItem), nil
}

func (s *Syncer) push(ctx context.Context, items []*types.MemoryItem) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.transport.Push(ctx, items)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrCircuitOpen
		}
		return fmt.Errorf("cloudsync: push: %w", err)
	}
	return nil
}
