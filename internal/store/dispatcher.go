package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Notification announces that records matching Query changed. Watchers re-read the full
// result set; RecordIDs is informational.
type Notification struct {
	Query     Query
	RecordIDs []string
	Timestamp time.Time
}

// merge folds a newer notification into one the watcher has not consumed yet.
func (n Notification) merge(next Notification) Notification {
	merged := Notification{
		Query:     n.Query,
		RecordIDs: slices.Clone(n.RecordIDs),
		Timestamp: next.Timestamp,
	}
	for _, recordID := range next.RecordIDs {
		if !slices.Contains(merged.RecordIDs, recordID) {
			merged.RecordIDs = append(merged.RecordIDs, recordID)
		}
	}
	return merged
}

// watcher owns a single-slot stream. Pending notifications are merged rather than queued,
// so a slow reader sees at most one outstanding change per query.
type watcher struct {
	mu     sync.Mutex
	stream chan Notification
	closed bool
}

func (w *watcher) deliver(notification Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case pending := <-w.stream:
		notification = pending.merge(notification)
	default:
	}
	// Only deliver writes to the stream and it holds mu, so the slot is free here.
	w.stream <- notification
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.stream)
}

// Dispatcher routes committed changes to the watchers of each query.
type Dispatcher struct {
	mu       sync.RWMutex
	watchers map[Query]map[*watcher]struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{watchers: make(map[Query]map[*watcher]struct{})}
}

// Subscribe watches query until ctx is done or the returned cleanup runs. Either way the
// stream is closed, so callers may range over it.
func (d *Dispatcher) Subscribe(ctx context.Context, query Query) (<-chan Notification, func()) {
	w := &watcher{stream: make(chan Notification, 1)}

	d.mu.Lock()
	set, ok := d.watchers[query]
	if !ok {
		set = make(map[*watcher]struct{})
		d.watchers[query] = set
	}
	set[w] = struct{}{}
	d.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			d.remove(query, w)
			w.close()
		})
	}
	stop := context.AfterFunc(ctx, release)
	return w.stream, func() {
		stop()
		release()
	}
}

// Publish hands notification to every watcher of its query without blocking.
func (d *Dispatcher) Publish(notification Notification) {
	d.mu.RLock()
	targets := make([]*watcher, 0, len(d.watchers[notification.Query]))
	for w := range d.watchers[notification.Query] {
		targets = append(targets, w)
	}
	d.mu.RUnlock()

	for _, w := range targets {
		w.deliver(notification)
	}
}

// SubscriberCount returns the number of open watchers on query.
func (d *Dispatcher) SubscriberCount(query Query) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.watchers[query])
}

func (d *Dispatcher) remove(query Query, w *watcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.watchers[query]
	delete(set, w)
	if len(set) == 0 {
		delete(d.watchers, query)
	}
}
