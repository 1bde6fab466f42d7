package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"backend-triptracker/internal/tracking"

	"github.com/redis/go-redis/v9"
)

const writeTimeout = 3 * time.Second

// Source is the engine surface a checkpoint follows.
type Source interface {
	Subscribe(fn func(tracking.Snapshot)) func()
	SubscribeSaveResults(fn func(tracking.SaveResult)) func()
	ReportError(err error)
}

// Store keeps the live trip snapshot in redis so a restarted process can
// resume it. Writes happen on a background worker; only the newest pending
// snapshot is written.
type Store struct {
	redis *redis.Client
	key   string

	mu        sync.Mutex
	pending   *job
	lastWrote *tracking.Snapshot
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	detach    []func()
	reporter  Source
}

type job struct {
	snap  tracking.Snapshot
	clear bool
}

func NewStore(client *redis.Client, deviceID string) *Store {
	return &Store{
		redis: client,
		key:   Key(deviceID),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func Key(deviceID string) string {
	return "trip:" + deviceID + ":checkpoint"
}

func (s *Store) Save(ctx context.Context, snap tracking.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.redis.Set(ctx, s.key, body, 0).Err()
}

// Load returns the stored snapshot; ok is false when none exists.
func (s *Store) Load(ctx context.Context) (tracking.Snapshot, bool, error) {
	body, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return tracking.Snapshot{}, false, nil
	}
	if err != nil {
		return tracking.Snapshot{}, false, err
	}

	var snap tracking.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return tracking.Snapshot{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return snap, true, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.redis.Del(ctx, s.key).Err()
}

// Attach starts following src: snapshots are checkpointed and a successful
// save removes the checkpoint. Errors go to src.ReportError.
func (s *Store) Attach(src Source) {
	s.reporter = src
	s.detach = append(s.detach,
		src.Subscribe(func(snap tracking.Snapshot) {
			s.enqueue(&job{snap: snap})
		}),
		src.SubscribeSaveResults(func(r tracking.SaveResult) {
			if r.Status == tracking.SaveSucceeded {
				s.enqueue(&job{clear: true})
			}
		}),
	)
	go s.run()
}

// Close detaches from the source and flushes the last pending write.
func (s *Store) Close() {
	for _, fn := range s.detach {
		fn()
	}
	if s.reporter == nil {
		return
	}
	close(s.stop)
	<-s.done
}

func (s *Store) enqueue(j *job) {
	s.mu.Lock()
	s.pending = j
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.stop:
			s.flush()
			return
		}
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	j := s.pending
	s.pending = nil
	s.mu.Unlock()
	if j == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if j.clear {
		if err := s.Clear(ctx); err != nil {
			s.report(fmt.Errorf("checkpoint clear: %w", err))
			return
		}
		s.lastWrote = nil
		return
	}
	if s.lastWrote != nil && tickOnly(*s.lastWrote, j.snap) {
		return
	}
	if err := s.Save(ctx, j.snap); err != nil {
		s.report(fmt.Errorf("checkpoint write: %w", err))
		return
	}
	snap := j.snap
	s.lastWrote = &snap
}

func (s *Store) report(err error) {
	if s.reporter != nil {
		s.reporter.ReportError(err)
		return
	}
	log.Printf("%v", err)
}

// tickOnly reports whether next differs from prev only by elapsed duration,
// which Restore recomputes from the start time anyway.
func tickOnly(prev, next tracking.Snapshot) bool {
	return prev.Status == next.Status &&
		prev.StartTime.Equal(next.StartTime) &&
		prev.EndTime.Equal(next.EndTime) &&
		len(prev.History) == len(next.History) &&
		prev.LocationServiceEnabled == next.LocationServiceEnabled
}
