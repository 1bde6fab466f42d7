package storage

import (
	"context"
	"log"
	"sync"

	"backend-triptracker/internal/tracking"
)

// Gateway is the single writer of the trip record store. It serializes a
// trip history, inserts it, and writes the optional export files.
type Gateway struct {
	store    Store
	exporter *Exporter

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewGateway(store Store, exporter *Exporter) *Gateway {
	return &Gateway{
		store:    store,
		exporter: exporter,
		inflight: map[string]struct{}{},
	}
}

func (g *Gateway) Save(ctx context.Context, recordID string, history []tracking.Fix) error {
	if g.store == nil {
		return &PersistError{TransErr: "no record store configured"}
	}
	if !g.acquire(recordID) {
		return ErrSaveInFlight
	}
	defer g.release(recordID)

	payload, err := EncodeJSON(history)
	if err != nil {
		return &PersistError{StmtErr: err.Error()}
	}
	if err := g.store.Insert(ctx, recordID, string(payload)); err != nil {
		return err
	}

	if g.exporter != nil {
		if _, err := g.exporter.Export(recordID, history); err != nil {
			log.Printf("trip export failed: %v", err)
		}
	}
	return nil
}

func (g *Gateway) acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[id]; busy {
		return false
	}
	g.inflight[id] = struct{}{}
	return true
}

func (g *Gateway) release(id string) {
	g.mu.Lock()
	delete(g.inflight, id)
	g.mu.Unlock()
}
