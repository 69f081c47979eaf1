// Package sse implements a Server-Sent Events broker that pushes annotation
// and catalogue changes to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast. A non-empty Profile limits
// delivery to clients subscribed to that profile and to unfiltered clients.
type Event struct {
	Type    string `json:"type"`
	Profile string `json:"-"`
	Data    any    `json:"data"`
}

type annotationEventReq struct {
	kind      string
	profile   string
	problemID int
}

type subscription struct {
	ch      chan []byte
	profile string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns the client set and the throttle
// timestamp; public methods talk to it over channels.
type Broker struct {
	statsMin time.Duration

	subscribeCh       chan subscription
	unsubscribeCh     chan chan []byte
	publishCh         chan Event
	annotationEventCh chan annotationEventReq
	countReqCh        chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	seq     atomic.Uint64
}

// NewBroker creates a broker. statsThrottle is the minimum interval between
// two stats.updated events.
func NewBroker(statsThrottle time.Duration) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}

	b := &Broker{
		statsMin:          statsThrottle,
		subscribeCh:       make(chan subscription),
		unsubscribeCh:     make(chan chan []byte),
		publishCh:         make(chan Event, 256),
		annotationEventCh: make(chan annotationEventReq, 256),
		countReqCh:        make(chan chan int),
		stopCh:            make(chan struct{}),
		stopped:           make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastStats time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", b.seq.Add(1), event.Type, payload))

		for ch, profile := range clients {
			if event.Profile != "" && profile != "" && profile != event.Profile {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.profile

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.annotationEventCh:
			data := map[string]any{"profile": req.profile}
			if req.problemID > 0 {
				data["problem_id"] = req.problemID
			}
			broadcast(Event{Type: "annotation." + req.kind, Profile: req.profile, Data: data})

			now := time.Now()
			if now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				broadcast(Event{Type: "stats.updated", Profile: req.profile, Data: map[string]string{"profile": req.profile}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. An empty profile receives every event.
func (b *Broker) Subscribe(profile string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, profile: profile}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all matching clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishAnnotationEvent publishes annotation.<kind> and a throttled
// stats.updated. problemID 0 means a profile-wide change.
func (b *Broker) PublishAnnotationEvent(kind, profile string, problemID int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.annotationEventCh <- annotationEventReq{kind: kind, profile: profile, problemID: problemID}:
	case <-b.stopped:
	}
}

// PublishCatalogueRebuilt announces a new envelope to every client.
func (b *Broker) PublishCatalogueRebuilt(records int, sourceChecksum string, builtAt time.Time) {
	b.Publish(Event{Type: "catalogue.rebuilt", Data: map[string]string{
		"records":  strconv.Itoa(records),
		"checksum": sourceChecksum,
		"built_at": builtAt.UTC().Format(time.RFC3339),
	}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// profile query parameter narrows annotation events to one profile.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("profile"))
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
