package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/playperu/fivehints/internal/engine"
)

// EnrichmentEvent is pushed to session subscribers once a nudge or analysis
// call settles after the guess response already went out.
type EnrichmentEvent struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"session_id"`
	Kind      engine.Enrichment       `json:"kind"`
	Status    engine.EnrichmentStatus `json:"status"`
	Session   engine.Snapshot         `json:"session"`
}

// replayWindow is how long the latest event per kind is kept for clients
// that subscribe after it was published.
const replayWindow = 10 * time.Minute

type retained struct {
	at     time.Time
	events map[engine.Enrichment][]byte
}

// Broker fans enrichment events out to the streams of one session. It keeps
// the latest event of each kind so a stream opened late (or reopened after
// a dropped connection) still sees results that already landed.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan []byte]struct{}
	recent map[string]*retained
	now    func() time.Time
}

func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[string]map[chan []byte]struct{}),
		recent: make(map[string]*retained),
		now:    time.Now,
	}
}

// Subscribe returns a channel of JSON-encoded events, primed with whatever
// is retained for the session.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 16)

	b.mu.Lock()
	defer b.mu.Unlock()

	if r := b.recent[sessionID]; r != nil && b.now().Sub(r.at) < replayWindow {
		for _, kind := range []engine.Enrichment{engine.EnrichmentNudge, engine.EnrichmentAnalysis} {
			if data, ok := r.events[kind]; ok {
				ch <- data
			}
		}
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Publish retains event and delivers it to current subscribers. Slow
// subscribers miss it rather than block the engine.
func (b *Broker) Publish(sessionID string, event EnrichmentEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, r := range b.recent {
		if now.Sub(r.at) >= replayWindow {
			delete(b.recent, id)
		}
	}
	r := b.recent[sessionID]
	if r == nil {
		r = &retained{events: make(map[engine.Enrichment][]byte)}
		b.recent[sessionID] = r
	}
	r.at = now
	r.events[event.Kind] = data

	for ch := range b.subs[sessionID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// Forget drops retained events of an abandoned session.
func (b *Broker) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.recent, sessionID)
	b.mu.Unlock()
}

// Notify adapts the broker to engine.Notifier.
func (b *Broker) Notify(sessionID string, kind engine.Enrichment, snap engine.Snapshot) {
	status := snap.NudgeStatus
	if kind == engine.EnrichmentAnalysis {
		status = snap.AnalysisStatus
	}
	b.Publish(sessionID, EnrichmentEvent{
		Type:      "enrichment",
		SessionID: sessionID,
		Kind:      kind,
		Status:    status,
		Session:   snap,
	})
}
