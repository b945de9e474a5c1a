package midi

import (
	"testing"

	"github.com/rjarnstrom/plexus"
)

func TestRouterAddKBInEnforcesUniqueness(t *testing.T) {
	r := NewRouter()
	route := KBInRoute{Port: 0, Channel: 0, Target: 1}
	if st := r.AddKBIn(route); st != plexus.StatusOK {
		t.Fatalf("expected first add ok, got %v", st)
	}
	if st := r.AddKBIn(route); st != plexus.StatusInvalidArguments {
		t.Fatalf("expected duplicate (port,channel) rejected, got %v", st)
	}
}

func TestRouterRemoveKBInNotFound(t *testing.T) {
	r := NewRouter()
	if st := r.RemoveKBIn(0, 0); st != plexus.StatusNotFound {
		t.Fatalf("expected not-found removing an absent route, got %v", st)
	}
}

func TestRouterCurrentSnapshotIsImmutable(t *testing.T) {
	r := NewRouter()
	before := r.Current()
	r.AddKBIn(KBInRoute{Port: 0, Channel: 0, Target: 1})
	if _, ok := before.LookupKBIn(0, 0); ok {
		t.Fatalf("expected a snapshot taken before the mutation to remain unaffected (RCU)")
	}
	after := r.Current()
	if _, ok := after.LookupKBIn(0, 0); !ok {
		t.Fatalf("expected the new snapshot to observe the added route")
	}
}

func TestRouterDisconnectAllForProcessorRemovesEveryTable(t *testing.T) {
	r := NewRouter()
	r.AddKBIn(KBInRoute{Port: 0, Channel: 0, Target: 5})
	r.AddCCIn(CCInRoute{Port: 0, Channel: 0, CC: 1, Processor: 5, Parameter: 10, Max: 1})
	r.AddPCIn(PCInRoute{Port: 0, Channel: 0, Processor: 5})

	r.DisconnectAllForProcessor(5)

	cur := r.Current()
	if _, ok := cur.LookupKBIn(0, 0); ok {
		t.Fatalf("expected kb-in route removed")
	}
	if _, ok := cur.LookupCCIn(0, 0, 1); ok {
		t.Fatalf("expected cc-in route removed")
	}
	if _, ok := cur.LookupPCIn(0, 0); ok {
		t.Fatalf("expected pc-in route removed")
	}
}

func TestKBOutRoutesForFiltersBySource(t *testing.T) {
	r := NewRouter()
	r.AddKBOut(KBOutRoute{Port: 0, Channel: 0, Source: 1})
	r.AddKBOut(KBOutRoute{Port: 0, Channel: 1, Source: 2})
	routes := r.Current().KBOutRoutesFor(1)
	if len(routes) != 1 || routes[0].Source != 1 {
		t.Fatalf("expected exactly one route for source 1, got %v", routes)
	}
}
