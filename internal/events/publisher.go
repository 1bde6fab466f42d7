package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"backend-triptracker/internal/tracking"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName   = "trip.events"
	publishTimeout = 5 * time.Second

	TypeFinished   = "trip.finished"
	TypeSaved      = "trip.saved"
	TypeSaveFailed = "trip.save_failed"
)

// Source is the engine surface the publisher follows.
type Source interface {
	Subscribe(fn func(tracking.Snapshot)) func()
	SubscribeSaveResults(fn func(tracking.SaveResult)) func()
	ReportError(err error)
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Event struct {
	Type        string    `json:"type"`
	DeviceID    string    `json:"device_id"`
	RecordID    string    `json:"record_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	DistanceKm  float64   `json:"distance_km"`
	DurationSec int64     `json:"duration_sec"`
	PointCount  int       `json:"point_count"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher announces trip lifecycle events on a fanout exchange.
type Publisher struct {
	ch       channel
	deviceID string
	now      func() time.Time

	mu       sync.Mutex
	prev     tracking.Status
	finished tracking.Snapshot
	reporter Source
	detach   []func()
	wg       sync.WaitGroup
}

func NewPublisher(conn *amqp.Connection, deviceID string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return newPublisher(ch, deviceID), nil
}

func newPublisher(ch channel, deviceID string) *Publisher {
	return &Publisher{ch: ch, deviceID: deviceID, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

// Attach publishes trip.finished when a recording stops and one of
// trip.saved or trip.save_failed when a save settles. Publishing happens
// off the observer goroutine; failures go to src.ReportError.
func (p *Publisher) Attach(src Source) {
	p.reporter = src
	p.detach = append(p.detach,
		src.Subscribe(p.onSnapshot),
		src.SubscribeSaveResults(p.onSaveResult),
	)
}

func (p *Publisher) Close() error {
	for _, fn := range p.detach {
		fn()
	}
	p.wg.Wait()
	return p.ch.Close()
}

func (p *Publisher) onSnapshot(s tracking.Snapshot) {
	p.mu.Lock()
	prev := p.prev
	p.prev = s.Status
	if s.Status == tracking.StatusFinished {
		p.finished = s
	}
	p.mu.Unlock()

	if prev == tracking.StatusRecording && s.Status == tracking.StatusFinished {
		p.fire(p.event(TypeFinished, s))
	}
}

func (p *Publisher) onSaveResult(r tracking.SaveResult) {
	var kind string
	switch r.Status {
	case tracking.SaveSucceeded:
		kind = TypeSaved
	case tracking.SaveFailed:
		kind = TypeSaveFailed
	default:
		return
	}

	p.mu.Lock()
	s := p.finished
	p.mu.Unlock()

	ev := p.event(kind, s)
	ev.RecordID = r.RecordID
	ev.Error = r.ErrorDetail
	p.fire(ev)
}

func (p *Publisher) event(kind string, s tracking.Snapshot) Event {
	return Event{
		Type:        kind,
		DeviceID:    p.deviceID,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		DistanceKm:  s.DistanceKm,
		DurationSec: s.DurationSec,
		PointCount:  len(s.History),
		OccurredAt:  p.now().UTC(),
	}
}

func (p *Publisher) fire(ev Event) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, ev); err != nil && p.reporter != nil {
			p.reporter.ReportError(fmt.Errorf("publish %s: %w", ev.Type, err))
		}
	}()
}
