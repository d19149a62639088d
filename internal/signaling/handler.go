package signaling

import (
	"maps"
	"slices"
	"sync"
)

// Handler receives inbound events. Handlers run on the client's read
// goroutine in registration order and must not block.
type Handler func(Event)

// dispatcher routes events to subscribed handlers by name.
type dispatcher struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[string]map[uint64]Handler)}
}

// on subscribes fn and returns the matching unsubscribe. After off returns,
// fn is not called for events dispatched later.
func (d *dispatcher) on(name string, fn Handler) (off func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	id := d.next
	if d.subs[name] == nil {
		d.subs[name] = make(map[uint64]Handler)
	}
	d.subs[name][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[name], id)
			if len(d.subs[name]) == 0 {
				delete(d.subs, name)
			}
		})
	}
}

func (d *dispatcher) dispatch(ev Event) {
	d.mu.Lock()
	subs := d.subs[ev.Name]
	fns := make([]Handler, 0, len(subs))
	for _, id := range slices.Sorted(maps.Keys(subs)) {
		fns = append(fns, subs[id])
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (d *dispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, subs := range d.subs {
		n += len(subs)
	}
	return n
}
