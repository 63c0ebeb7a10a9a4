package remote

import "sync"

// dispatcher fans collection snapshots out to registered subscribers. One
// subscriber map per collection path, keyed by a monotonically increasing id.
type dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
}

type subscriber struct {
	id         int64
	onSnapshot SnapshotHandler
	onError    ErrorHandler
}

func newDispatcher() *dispatcher {
	return &dispatcher{subscribers: make(map[string]map[int64]*subscriber)}
}

func (d *dispatcher) register(collection string, onSnapshot SnapshotHandler, onError ErrorHandler) (int64, func()) {
	d.mu.Lock()
	d.nextID++
	sub := &subscriber{id: d.nextID, onSnapshot: onSnapshot, onError: onError}
	if _, ok := d.subscribers[collection]; !ok {
		d.subscribers[collection] = make(map[int64]*subscriber)
	}
	d.subscribers[collection][sub.id] = sub
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		if subs := d.subscribers[collection]; subs != nil {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(d.subscribers, collection)
			}
		}
		d.mu.Unlock()
	}
	return sub.id, cleanup
}

func (d *dispatcher) publish(collection string, docs []Snapshot) {
	d.mu.RLock()
	subs := d.subscribers[collection]
	if len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		sub.onSnapshot(docs)
	}
}

func (d *dispatcher) publishError(collection string, err error) {
	d.mu.RLock()
	subs := d.subscribers[collection]
	copies := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

func (d *dispatcher) hasSubscribers(collection string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[collection]) > 0
}
