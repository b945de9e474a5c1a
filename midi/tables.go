// Package midi implements the MIDI connection tables: four tables indexed
// by (port, channel, extra), each enforcing uniqueness on its full key,
// published to the realtime world with a read-copy-update swap: the
// dispatcher builds a new table and atomically swaps the RT-visible
// pointer; the old table is retired after one block.
package midi

import (
	"sync/atomic"

	"github.com/rjarnstrom/plexus"
)

// KBInRoute routes incoming note/channel messages on (port, channel) to a
// target track, optionally forwarding raw MIDI bytes instead of decoded
// note events.
type KBInRoute struct {
	Port, Channel int
	Target        plexus.ID
	RawMIDI       bool
}

// KBOutRoute routes a track's forwarded events back out as MIDI on
// (port, channel).
type KBOutRoute struct {
	Port, Channel int
	Source        plexus.ID
}

// CCInRoute maps an incoming MIDI CC number on (port, channel) to a
// processor parameter, with a declared value range and relative-mode flag.
type CCInRoute struct {
	Port, Channel, CC int
	Processor         plexus.ID
	Parameter         plexus.ID
	Min, Max          float64
	Relative          bool
}

// PCInRoute maps an incoming MIDI program-change on (port, channel) to a
// processor (whose program list index it selects).
type PCInRoute struct {
	Port, Channel int
	Processor     plexus.ID
}

type kbInKey struct{ port, channel int }
type ccInKey struct{ port, channel, cc int }
type pcInKey struct{ port, channel int }
type kbOutKey struct{ port, channel int }

// Tables is one immutable snapshot of all four connection tables. The
// realtime thread only ever reads through an atomic pointer to a Tables
// value; the dispatcher publishes a new one wholesale.
type Tables struct {
	kbIn  map[kbInKey]KBInRoute
	kbOut map[kbOutKey]KBOutRoute
	ccIn  map[ccInKey]CCInRoute
	pcIn  map[pcInKey]PCInRoute
}

func emptyTables() *Tables {
	return &Tables{
		kbIn:  map[kbInKey]KBInRoute{},
		kbOut: map[kbOutKey]KBOutRoute{},
		ccIn:  map[ccInKey]CCInRoute{},
		pcIn:  map[pcInKey]PCInRoute{},
	}
}

func (t *Tables) clone() *Tables {
	c := emptyTables()
	for k, v := range t.kbIn {
		c.kbIn[k] = v
	}
	for k, v := range t.kbOut {
		c.kbOut[k] = v
	}
	for k, v := range t.ccIn {
		c.ccIn[k] = v
	}
	for k, v := range t.pcIn {
		c.pcIn[k] = v
	}
	return c
}

// LookupKBIn resolves an incoming (port, channel) note message's route.
func (t *Tables) LookupKBIn(port, channel int) (KBInRoute, bool) {
	r, ok := t.kbIn[kbInKey{port, channel}]
	return r, ok
}

// LookupCCIn resolves an incoming (port, channel, cc) CC message's route.
func (t *Tables) LookupCCIn(port, channel, cc int) (CCInRoute, bool) {
	r, ok := t.ccIn[ccInKey{port, channel, cc}]
	return r, ok
}

// LookupPCIn resolves an incoming (port, channel) program-change route.
func (t *Tables) LookupPCIn(port, channel int) (PCInRoute, bool) {
	r, ok := t.pcIn[pcInKey{port, channel}]
	return r, ok
}

// KBOutRoutesFor returns every kb-out route whose Source matches track,
// used when forwarding a track's outbound events to MIDI.
func (t *Tables) KBOutRoutesFor(track plexus.ID) []KBOutRoute {
	var out []KBOutRoute
	for _, r := range t.kbOut {
		if r.Source == track {
			out = append(out, r)
		}
	}
	return out
}

// Router owns the RT-visible atomic pointer to the current Tables and the
// dispatcher-side mutation API that publishes new ones. Only the
// dispatcher goroutine calls the mutating methods; the realtime thread
// only ever calls Current().
type Router struct {
	current atomic.Pointer[Tables]
}

// NewRouter constructs a router with all four tables empty.
func NewRouter() *Router {
	r := &Router{}
	r.current.Store(emptyTables())
	return r
}

// Current returns the RT-visible snapshot. Safe to call from the realtime
// thread without blocking.
func (r *Router) Current() *Tables { return r.current.Load() }

// AddKBIn inserts a kb-in route, enforcing uniqueness on (port, channel).
func (r *Router) AddKBIn(route KBInRoute) plexus.Status {
	key := kbInKey{route.Port, route.Channel}
	next := r.current.Load().clone()
	if _, exists := next.kbIn[key]; exists {
		return plexus.StatusInvalidArguments
	}
	next.kbIn[key] = route
	r.current.Store(next)
	return plexus.StatusOK
}

// RemoveKBIn deletes the kb-in route at (port, channel).
func (r *Router) RemoveKBIn(port, channel int) plexus.Status {
	key := kbInKey{port, channel}
	cur := r.current.Load()
	if _, exists := cur.kbIn[key]; !exists {
		return plexus.StatusNotFound
	}
	next := cur.clone()
	delete(next.kbIn, key)
	r.current.Store(next)
	return plexus.StatusOK
}

// AddKBOut inserts a kb-out route, enforcing uniqueness on (port, channel).
func (r *Router) AddKBOut(route KBOutRoute) plexus.Status {
	key := kbOutKey{route.Port, route.Channel}
	next := r.current.Load().clone()
	if _, exists := next.kbOut[key]; exists {
		return plexus.StatusInvalidArguments
	}
	next.kbOut[key] = route
	r.current.Store(next)
	return plexus.StatusOK
}

// RemoveKBOut deletes the kb-out route at (port, channel).
func (r *Router) RemoveKBOut(port, channel int) plexus.Status {
	key := kbOutKey{port, channel}
	cur := r.current.Load()
	if _, exists := cur.kbOut[key]; !exists {
		return plexus.StatusNotFound
	}
	next := cur.clone()
	delete(next.kbOut, key)
	r.current.Store(next)
	return plexus.StatusOK
}

// AddCCIn inserts a cc-in route, enforcing uniqueness on (port, channel, cc).
func (r *Router) AddCCIn(route CCInRoute) plexus.Status {
	key := ccInKey{route.Port, route.Channel, route.CC}
	next := r.current.Load().clone()
	if _, exists := next.ccIn[key]; exists {
		return plexus.StatusInvalidArguments
	}
	next.ccIn[key] = route
	r.current.Store(next)
	return plexus.StatusOK
}

// RemoveCCIn deletes the cc-in route at (port, channel, cc).
func (r *Router) RemoveCCIn(port, channel, cc int) plexus.Status {
	key := ccInKey{port, channel, cc}
	cur := r.current.Load()
	if _, exists := cur.ccIn[key]; !exists {
		return plexus.StatusNotFound
	}
	next := cur.clone()
	delete(next.ccIn, key)
	r.current.Store(next)
	return plexus.StatusOK
}

// AddPCIn inserts a pc-in route, enforcing uniqueness on (port, channel).
func (r *Router) AddPCIn(route PCInRoute) plexus.Status {
	key := pcInKey{route.Port, route.Channel}
	next := r.current.Load().clone()
	if _, exists := next.pcIn[key]; exists {
		return plexus.StatusInvalidArguments
	}
	next.pcIn[key] = route
	r.current.Store(next)
	return plexus.StatusOK
}

// RemovePCIn deletes the pc-in route at (port, channel).
func (r *Router) RemovePCIn(port, channel int) plexus.Status {
	key := pcInKey{port, channel}
	cur := r.current.Load()
	if _, exists := cur.pcIn[key]; !exists {
		return plexus.StatusNotFound
	}
	next := cur.clone()
	delete(next.pcIn, key)
	r.current.Store(next)
	return plexus.StatusOK
}

// DisconnectAllForProcessor removes every cc-in and pc-in route addressed
// at processor, and every kb-in route targeting it, in one RCU swap.
func (r *Router) DisconnectAllForProcessor(processor plexus.ID) {
	cur := r.current.Load()
	next := cur.clone()
	for k, v := range next.kbIn {
		if v.Target == processor {
			delete(next.kbIn, k)
		}
	}
	for k, v := range next.ccIn {
		if v.Processor == processor {
			delete(next.ccIn, k)
		}
	}
	for k, v := range next.pcIn {
		if v.Processor == processor {
			delete(next.pcIn, k)
		}
	}
	r.current.Store(next)
}
