// Package notify implements notification fan-out: a subscription registry
// indexed by notification kind, where delivery pushes into each
// subscriber's own bounded queue rather than invoking the subscriber
// directly while holding the registry lock. One buffered channel per
// recipient plus a non-blocking send never lets a slow consumer stall the
// producer.
package notify

import (
	"sync"
)

// Kind identifies a category of notification.
type Kind int

const (
	TransportUpdate Kind = iota
	CPUTimingUpdate
	TrackUpdate
	ProcessorUpdate
	ParameterChange
	numKinds
)

// Notification is the payload delivered to subscribers. Data's concrete
// type depends on Kind and on the publisher (e.g. a controller
// TransportState for TransportUpdate, the plexus.RTEvent itself for
// ParameterChange, a plexus.ID for most track/processor updates); this
// package does not constrain it.
type Notification struct {
	Kind Kind
	Data any
}

// Subscriber is a caller-managed handle receiving notifications of one
// kind. Ch is buffered; a full channel means the subscriber is falling
// behind and the notification is dropped for it (a non-critical event),
// never blocking the registry.
type Subscriber struct {
	Ch <-chan Notification

	ch        chan Notification
	kind      Kind
	registry  *Registry
	cancelled bool
	mu        sync.Mutex
}

// Cancel deregisters the subscriber. Idempotent and safe to call
// concurrently with in-flight deliveries: a delivery racing with Cancel
// either lands or is dropped, but never panics or double-closes.
func (s *Subscriber) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	s.registry.remove(s)
}

func (s *Subscriber) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// QueueDepth is the default per-subscriber bounded queue capacity.
const QueueDepth = 64

// Registry maps notification kind to a set of subscribers. Each kind has
// its own coarse mutex; the lock is held only long enough to snapshot the
// subscriber list or add/remove an entry, never while pushing into a
// subscriber's channel.
type Registry struct {
	mus  [numKinds]sync.Mutex
	subs [numKinds]map[*Subscriber]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for k := range r.subs {
		r.subs[k] = map[*Subscriber]struct{}{}
	}
	return r
}

// Subscribe registers a new subscriber for kind and returns its handle.
func (r *Registry) Subscribe(kind Kind) *Subscriber {
	ch := make(chan Notification, QueueDepth)
	s := &Subscriber{Ch: ch, ch: ch, kind: kind, registry: r}
	r.mus[kind].Lock()
	r.subs[kind][s] = struct{}{}
	r.mus[kind].Unlock()
	return s
}

func (r *Registry) remove(s *Subscriber) {
	r.mus[s.kind].Lock()
	delete(r.subs[s.kind], s)
	r.mus[s.kind].Unlock()
}

// Publish delivers a notification to every current subscriber of kind. It
// snapshots the subscriber set under the kind's mutex, then pushes outside
// the lock so a blocked/slow subscriber can never stall Publish or other
// kinds' delivery.
func (r *Registry) Publish(kind Kind, data any) {
	r.mus[kind].Lock()
	snapshot := make([]*Subscriber, 0, len(r.subs[kind]))
	for s := range r.subs[kind] {
		snapshot = append(snapshot, s)
	}
	r.mus[kind].Unlock()

	n := Notification{Kind: kind, Data: data}
	for _, s := range snapshot {
		if s.isCancelled() {
			continue
		}
		trySend(s.ch, n)
	}
}

// trySend attempts the send and drops silently (a full queue means a slow
// subscriber, a non-critical condition) rather than block.
func trySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// Count reports how many subscribers are currently registered for kind,
// for tests and diagnostics.
func (r *Registry) Count(kind Kind) int {
	r.mus[kind].Lock()
	defer r.mus[kind].Unlock()
	return len(r.subs[kind])
}
