// internal/device/observers.go
package device

import (
	"sync"
	"time"
	"weak"
)

// EventKind says what changed the cache.
type EventKind int

const (
	EventRefreshed EventKind = iota + 1 // full span read
	EventWritten                        // confirmed single-register write
)

func (k EventKind) String() string {
	switch k {
	case EventRefreshed:
		return "refreshed"
	case EventWritten:
		return "written"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after the device lock is released.
type Event struct {
	DeviceID string
	Kind     EventKind
	Property Property // written property; empty for refreshes
	At       time.Time
	State    State
}

// observers is a registry of callbacks. A callback returning false is removed.
type observers struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(Event) bool
}

func (o *observers) add(fn func(Event) bool) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fns == nil {
		o.fns = make(map[uint64]func(Event) bool)
	}
	o.next++
	id := o.next
	o.fns[id] = fn

	return func() {
		o.mu.Lock()
		delete(o.fns, id)
		o.mu.Unlock()
	}
}

func (o *observers) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fns)
}

// notify calls observers synchronously on the caller's goroutine.
func (o *observers) notify(events ...Event) {
	if len(events) == 0 {
		return
	}

	o.mu.Lock()
	ids := make([]uint64, 0, len(o.fns))
	fns := make([]func(Event) bool, 0, len(o.fns))
	for id, fn := range o.fns {
		ids = append(ids, id)
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	var gone []uint64
	for i, fn := range fns {
		for _, ev := range events {
			if !fn(ev) {
				gone = append(gone, ids[i])
				break
			}
		}
	}

	if len(gone) == 0 {
		return
	}
	o.mu.Lock()
	for _, id := range gone {
		delete(o.fns, id)
	}
	o.mu.Unlock()
}

// Subscribe registers fn until cancel is called. The device keeps fn alive.
func (d *Device) Subscribe(fn func(Event)) (cancel func()) {
	return d.obs.add(func(ev Event) bool {
		fn(ev)
		return true
	})
}

// Observe registers fn on behalf of owner without keeping owner alive.
// Once owner is garbage collected the registration is dropped on the next event.
// fn receives the owner and must not capture it, or the owner never becomes unreachable.
func Observe[T any](d *Device, owner *T, fn func(owner *T, ev Event)) (cancel func()) {
	wp := weak.Make(owner)
	return d.obs.add(func(ev Event) bool {
		o := wp.Value()
		if o == nil {
			return false
		}
		fn(o, ev)
		return true
	})
}
