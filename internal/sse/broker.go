// Package sse streams editor and workspace events to browser clients as
// Server-Sent Events.
package sse

import (
	"net/http"
	"sync/atomic"
	"time"
)

const (
	// subscriberBuffer is how many frames a slow client may lag behind
	// before it starts missing events.
	subscriberBuffer = 64

	// KeepAlive is the interval of comment frames on idle streams.
	KeepAlive = 25 * time.Second
)

// Broker fans events out to subscribed clients. A single loop goroutine owns
// the subscriber set, the sequence counter and the tree throttle; the public
// methods only talk to it over channels.
type Broker struct {
	treeEvery time.Duration

	in    chan Event
	join  chan chan []byte
	leave chan chan []byte
	count chan chan int

	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker. tree.updated is sent at most once per
// treeEvery; non-positive values mean two seconds.
func NewBroker(treeEvery time.Duration) *Broker {
	if treeEvery <= 0 {
		treeEvery = 2 * time.Second
	}
	b := &Broker{
		treeEvery: treeEvery,
		in:        make(chan Event, 256),
		join:      make(chan chan []byte),
		leave:     make(chan chan []byte),
		count:     make(chan chan int),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.done)

	subs := make(map[chan []byte]struct{})
	var (
		seq      uint64
		lastTree time.Time
	)
	send := func(ev Event) {
		seq++
		msg := ev.frame(seq)
		for ch := range subs {
			select {
			case ch <- msg:
			default:
				// A full client misses this event; the loop never blocks.
			}
		}
	}

	for {
		select {
		case <-b.quit:
			for ch := range subs {
				close(ch)
			}
			return
		case ch := <-b.join:
			subs[ch] = struct{}{}
		case ch := <-b.leave:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
		case reply := <-b.count:
			reply <- len(subs)
		case ev := <-b.in:
			send(ev)
			if ev.Kind.reshapesTree() {
				if now := time.Now(); now.Sub(lastTree) >= b.treeEvery {
					lastTree = now
					send(Event{Kind: TreeUpdated})
				}
			}
		}
	}
}

// Close stops the loop and closes every subscriber channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.quit)
	}
	<-b.done
}

// Publish queues ev for every subscriber. It is a no-op after Close.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.in <- ev:
	case <-b.done:
	}
}

// Subscribe registers a client. The returned channel is closed by
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.done:
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
	case b.leave <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of subscribed clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
	case <-b.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.done:
		return 0
	}
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(KeepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
