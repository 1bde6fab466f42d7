package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Feed is the location subscription collaborator.
type Feed interface {
	Subscribe(opts SubscribeOptions) error
	Unsubscribe() error
}

// ServiceChecker reports whether the platform location service is usable.
type ServiceChecker interface {
	IsLocationServiceEnabled() bool
}

// Persister stores a finished trip's history under recordID.
type Persister interface {
	Save(ctx context.Context, recordID string, history []Fix) error
}

type Options struct {
	AccuracyThresholdM float64
	TickInterval       time.Duration
	SaveTimeout        time.Duration
	Subscription       SubscribeOptions
	Now                func() time.Time
}

type Deps struct {
	Feed      Feed
	Services  ServiceChecker
	Persister Persister
}

var errNoPersister = errors.New("no persistence gateway configured")

// Engine owns the trip lifecycle. All mutations happen under mu; readers get
// the last published Snapshot without locking.
//
// Observers registered with Subscribe and SubscribeSaveResults run
// synchronously in publish order and must not call Engine command methods.
type Engine struct {
	opts      Options
	feed      Feed
	services  ServiceChecker
	persister Persister

	// feedMu orders Subscribe/Unsubscribe calls to the feed with the
	// transitions that trigger them.
	feedMu sync.Mutex

	mu        sync.Mutex
	threshold float64
	state     Snapshot
	acc       Accumulator
	history   []Fix
	tickStop  chan struct{}
	saving    bool
	lastSave  SaveResult
	closed    bool

	current atomic.Pointer[Snapshot]

	obsMu         sync.RWMutex
	nextObserver  int
	observers     map[int]func(Snapshot)
	saveObservers map[int]func(SaveResult)

	errs chan error
	wg   sync.WaitGroup
}

func NewEngine(opts Options, deps Deps) *Engine {
	if opts.AccuracyThresholdM <= 0 {
		opts.AccuracyThresholdM = DefaultAccuracyThresholdM
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Feed == nil {
		deps.Feed = noopFeed{}
	}

	e := &Engine{
		opts:          opts,
		feed:          deps.Feed,
		services:      deps.Services,
		persister:     deps.Persister,
		threshold:     opts.AccuracyThresholdM,
		state:         Snapshot{Status: StatusIdle},
		observers:     map[int]func(Snapshot){},
		saveObservers: map[int]func(SaveResult){},
		errs:          make(chan error, 32),
	}
	initial := Snapshot{Status: StatusIdle, AccuracyThresholdM: e.threshold}
	e.current.Store(&initial)
	return e
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() Snapshot {
	return *e.current.Load()
}

// LastSaveResult returns the most recent save outcome, zero if none.
func (e *Engine) LastSaveResult() SaveResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSave
}

// SetAccuracyThreshold changes the threshold used from the next Start.
func (e *Engine) SetAccuracyThreshold(m float64) {
	if m <= 0 || math.IsNaN(m) {
		return
	}
	e.mu.Lock()
	e.threshold = m
	e.mu.Unlock()
}

func (e *Engine) Start() (Snapshot, error) {
	enabled := e.checkService()

	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.Snapshot(), ErrEngineClosed
	}
	if e.state.Status == StatusRecording {
		e.mu.Unlock()
		return e.Snapshot(), fmt.Errorf("%w: start while %s", ErrInvalidTransition, StatusRecording)
	}

	now := e.opts.Now()
	e.acc = Accumulator{}
	e.history = nil
	e.state = Snapshot{
		Status:                 StatusRecording,
		StartTime:              now,
		LocationServiceEnabled: enabled,
		AccuracyThresholdM:     e.threshold,
	}
	e.startTickerLocked()
	snap := e.publishLocked()
	e.mu.Unlock()

	if !enabled {
		log.Printf("location service disabled, trip started without fixes")
	}
	if err := e.feed.Subscribe(e.opts.Subscription); err != nil {
		e.ReportError(fmt.Errorf("location subscribe: %w", err))
	}
	return snap, nil
}

func (e *Engine) Stop() (Snapshot, error) {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	if e.state.Status != StatusRecording {
		status := e.state.Status
		e.mu.Unlock()
		return e.Snapshot(), fmt.Errorf("%w: stop while %s", ErrInvalidTransition, status)
	}

	now := e.opts.Now()
	e.stopTickerLocked()
	e.state.Status = StatusFinished
	e.state.EndTime = now
	e.state.DurationSec = elapsedSeconds(e.state.StartTime, now)
	snap := e.publishLocked()
	e.mu.Unlock()

	if err := e.feed.Unsubscribe(); err != nil {
		e.ReportError(fmt.Errorf("location unsubscribe: %w", err))
	}
	return snap, nil
}

// OnFixReceived ingests one delivered fix. Fixes arriving outside a
// recording trip are dropped silently; malformed ones return ErrFixRejected.
func (e *Engine) OnFixReceived(raw Fix) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusRecording || e.closed {
		return nil
	}

	outcome, err := Accept(raw, e.state.AccuracyThresholdM)
	if err != nil {
		log.Printf("dropping fix: %v", err)
		return err
	}

	e.acc.Apply(outcome)
	e.history = append(e.history, outcome.Fix)
	e.publishLocked()
	return nil
}

// Save hands the finished trip to the persister. It returns the pending
// result immediately; the final result reaches save observers later.
func (e *Engine) Save() (SaveResult, error) {
	e.mu.Lock()
	if e.state.Status != StatusFinished {
		status := e.state.Status
		e.mu.Unlock()
		return SaveResult{}, fmt.Errorf("%w: save while %s", ErrInvalidTransition, status)
	}
	if e.saving {
		e.mu.Unlock()
		return SaveResult{}, ErrSaveInFlight
	}

	e.saving = true
	id := RecordID(e.state.StartTime)
	history := e.history[:len(e.history):len(e.history)]
	pending := SaveResult{RecordID: id, Status: SavePending}
	e.lastSave = pending
	e.notifySave(pending)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.persist(id, history)
	return pending, nil
}

func (e *Engine) persist(id string, history []Fix) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.SaveTimeout)
	defer cancel()

	err := errNoPersister
	if e.persister != nil {
		err = e.persister.Save(ctx, id, history)
	}

	result := SaveResult{RecordID: id, Status: SaveSucceeded}
	if err != nil {
		result.Status = SaveFailed
		result.ErrorDetail = err.Error()
		e.ReportError(fmt.Errorf("save trip %s: %w", id, err))
	}

	e.mu.Lock()
	e.saving = false
	e.lastSave = result
	e.notifySave(result)
	e.mu.Unlock()
}

// Restore rebuilds a trip from a checkpointed snapshot by replaying its
// history. Only an idle engine can be restored.
func (e *Engine) Restore(snap Snapshot) (Snapshot, error) {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	e.mu.Lock()
	if e.state.Status != StatusIdle {
		status := e.state.Status
		e.mu.Unlock()
		return e.Snapshot(), fmt.Errorf("%w: restore while %s", ErrInvalidTransition, status)
	}
	if snap.Status == StatusIdle || snap.Status == "" {
		e.mu.Unlock()
		return e.Snapshot(), nil
	}

	threshold := snap.AccuracyThresholdM
	if threshold <= 0 {
		threshold = e.threshold
	}
	acc, accepted := Replay(snap.History, threshold)
	e.acc = acc
	e.history = accepted
	e.state = Snapshot{
		Status:                 snap.Status,
		StartTime:              snap.StartTime,
		EndTime:                snap.EndTime,
		DurationSec:            snap.DurationSec,
		LocationServiceEnabled: snap.LocationServiceEnabled,
		AccuracyThresholdM:     threshold,
	}

	recording := snap.Status == StatusRecording
	if recording {
		e.state.DurationSec = elapsedSeconds(snap.StartTime, e.opts.Now())
		e.startTickerLocked()
	}
	out := e.publishLocked()
	e.mu.Unlock()

	if recording {
		if err := e.feed.Subscribe(e.opts.Subscription); err != nil {
			e.ReportError(fmt.Errorf("location subscribe: %w", err))
		}
	}
	return out, nil
}

// CheckLocationService re-queries the service collaborator and republishes
// the status flag.
func (e *Engine) CheckLocationService() bool {
	enabled := e.checkService()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.LocationServiceEnabled != enabled {
		e.state.LocationServiceEnabled = enabled
		e.publishLocked()
	}
	return enabled
}

func (e *Engine) checkService() bool {
	if e.services == nil {
		return false
	}
	return e.services.IsLocationServiceEnabled()
}

// Subscribe registers a snapshot observer and returns its cancel func.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

func (e *Engine) SubscribeSaveResults(fn func(SaveResult)) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	id := e.nextObserver
	e.nextObserver++
	e.saveObservers[id] = fn
	return func() {
		e.obsMu.Lock()
		delete(e.saveObservers, id)
		e.obsMu.Unlock()
	}
}

// ReportError logs err and queues it on Errors without blocking.
func (e *Engine) ReportError(err error) {
	if err == nil {
		return
	}
	log.Printf("trip engine error: %v", err)
	select {
	case e.errs <- err:
	default:
	}
}

func (e *Engine) Errors() <-chan error {
	return e.errs
}

// Close halts ticking and waits for in-flight saves. The trip state is
// left as is so a checkpoint can resume it.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.stopTickerLocked()
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) publishLocked() Snapshot {
	s := e.state
	s.DistanceKm = e.acc.DistanceKm
	s.MaxSpeedMps = e.acc.MaxSpeedMps
	if e.acc.LastFix != nil {
		last := *e.acc.LastFix
		s.LastFix = &last
	}
	s.History = e.history[:len(e.history):len(e.history)]
	e.current.Store(&s)

	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, fn := range e.observers {
		fn(s)
	}
	return s
}

func (e *Engine) notifySave(r SaveResult) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, fn := range e.saveObservers {
		fn(r)
	}
}

func (e *Engine) startTickerLocked() {
	e.stopTickerLocked()
	stop := make(chan struct{})
	e.tickStop = stop

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.tick(stop)
			}
		}
	}()
}

func (e *Engine) stopTickerLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
}

func (e *Engine) tick(stop chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tickStop != stop || e.state.Status != StatusRecording {
		return
	}
	e.state.DurationSec = elapsedSeconds(e.state.StartTime, e.opts.Now())
	e.publishLocked()
}

// RecordID derives a stable record id from the trip start time, so retried
// saves of one trip share an id while different trips never collide.
func RecordID(start time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(start.UTC().Format(time.RFC3339Nano))).String()
}

func elapsedSeconds(start, now time.Time) int64 {
	d := math.Round(now.Sub(start).Seconds())
	if d < 0 {
		return 0
	}
	return int64(d)
}

type noopFeed struct{}

func (noopFeed) Subscribe(SubscribeOptions) error { return nil }
func (noopFeed) Unsubscribe() error { return nil }
