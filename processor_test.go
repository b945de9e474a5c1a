package plexus

import "testing"

func newTestProcessor() *BaseProcessor {
	p := NewBaseProcessor(1, "test", "Test", 2, 2)
	p.AddParameter(ParameterDescriptor{ID: 10, Name: "gain", Min: 0, Max: 2}, 0.5)
	p.AddProperty(PropertyDescriptor{ID: 20, Name: "path"}, "")
	return &p
}

func TestSetParameterValueAlwaysClamps(t *testing.T) {
	p := newTestProcessor()
	if st := p.SetParameterValue(10, 5); st != StatusOK {
		t.Fatalf("expected ok clamping out-of-range value, got %v", st)
	}
	v, _ := p.ParameterValue(10)
	if v != 1 {
		t.Fatalf("expected clamped value 1, got %v", v)
	}
	if st := p.SetParameterValue(10, -3); st != StatusOK {
		t.Fatalf("expected ok clamping negative value, got %v", st)
	}
	v, _ = p.ParameterValue(10)
	if v != 0 {
		t.Fatalf("expected clamped value 0, got %v", v)
	}
}

func TestSetParameterValueUnknownID(t *testing.T) {
	p := newTestProcessor()
	if st := p.SetParameterValue(999, 0.5); st != StatusNotFound {
		t.Fatalf("expected not-found for unknown parameter id, got %v", st)
	}
}

func TestDomainValueMapsThroughDescriptor(t *testing.T) {
	p := newTestProcessor()
	p.SetParameterValue(10, 0.5)
	domain, st := p.DomainValue(10)
	if st != StatusOK || domain != 1 {
		t.Fatalf("expected domain value 1 at normalized 0.5 on [0,2], got %v %v", domain, st)
	}
}

func TestStateExportApplyRoundTrip(t *testing.T) {
	p := newTestProcessor()
	p.SetParameterValue(10, 0.25)
	p.SetPropertyValue(20, "hello")
	p.SetBypass(true)
	state := p.StateExport("uid-1")

	q := newTestProcessor()
	if st := q.StateApply(state); st != StatusOK {
		t.Fatalf("StateApply failed: %v", st)
	}
	v, _ := q.ParameterValue(10)
	if v != 0.25 {
		t.Fatalf("expected parameter restored to 0.25, got %v", v)
	}
	prop, _ := q.PropertyValue(20)
	if prop != "hello" {
		t.Fatalf("expected property restored, got %q", prop)
	}
	if !q.Bypass() {
		t.Fatalf("expected bypass restored to true")
	}
}

func TestStateApplySkipsUnknownIDs(t *testing.T) {
	p := newTestProcessor()
	state := ProcessorState{
		Parameters: []ParameterValue{{ID: 999, Value: 1}},
		Properties: []PropertyValue{{ID: 998, Value: "x"}},
	}
	if st := p.StateApply(state); st != StatusOK {
		t.Fatalf("expected StateApply to tolerate unknown ids, got %v", st)
	}
}

func TestSetProgramWithoutPrograms(t *testing.T) {
	p := newTestProcessor()
	if st := p.SetProgram(0); st != StatusUnsupported {
		t.Fatalf("expected unsupported with no program list, got %v", st)
	}
}

func TestSetProgramOutOfRange(t *testing.T) {
	p := newTestProcessor()
	p.SetPrograms([]Program{{Index: 0, Name: "init"}})
	if st := p.SetProgram(5); st != StatusOutOfRange {
		t.Fatalf("expected out-of-range, got %v", st)
	}
	if st := p.SetProgram(0); st != StatusOK || p.CurrentProgram() != 0 {
		t.Fatalf("expected program 0 selected, got status %v current %v", st, p.CurrentProgram())
	}
}
