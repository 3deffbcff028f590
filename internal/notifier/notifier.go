// Package notifier broadcasts session revisions to listeners.
package notifier

import "sync"

// Notifier fans out revision numbers to subscribed listeners.
// Each listener channel holds at most one pending revision; a slow listener
// only ever sees the latest one and should re-read the session snapshot.
type Notifier struct {
	mu        sync.Mutex
	listeners map[chan uint64]struct{}
	closed    bool
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan uint64]struct{}),
	}
}

// Subscribe returns a channel receiving revisions. The caller must call
// Unsubscribe when done. Subscribing to a closed notifier returns a closed
// channel.
func (n *Notifier) Subscribe() chan uint64 {
	ch := make(chan uint64, 1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch
	}
	n.listeners[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (n *Notifier) Unsubscribe(ch chan uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[ch]; !ok {
		return
	}
	delete(n.listeners, ch)
	close(ch)
}

// Broadcast sends rev to every listener without blocking. A pending older
// revision is replaced.
func (n *Notifier) Broadcast(rev uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.listeners {
		select {
		case ch <- rev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- rev:
		default:
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// Close closes every listener channel. Later broadcasts are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for ch := range n.listeners {
		close(ch)
	}
	n.listeners = make(map[chan uint64]struct{})
}
