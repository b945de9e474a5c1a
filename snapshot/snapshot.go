// Package snapshot implements a yaml.v3-based session/processor-state
// import and export tool: a human-readable, diffable serialization of a
// plexus.ProcessorState, distinct from (and not a substitute for) the wire
// protocol the controller speaks over its RPC transport. Struct tags mirror
// the in-memory layout directly; no custom marshalers.
package snapshot

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rjarnstrom/plexus"
)

// ProcessorSnapshot is the on-disk form of one plexus.ProcessorState. Field
// names follow lower_snake_case matching the in-memory field it captures.
type ProcessorSnapshot struct {
	FormatVersion uint32             `yaml:"format_version"`
	ProcessorUID  string             `yaml:"processor_uid"`
	Program       *int               `yaml:"program,omitempty"`
	Bypass        *bool              `yaml:"bypass,omitempty"`
	Parameters    []ParameterEntry   `yaml:"parameters,omitempty"`
	Properties    []PropertyEntry    `yaml:"properties,omitempty"`
}

// ParameterEntry is one (id, normalized value) pair.
type ParameterEntry struct {
	ID    uint32  `yaml:"id"`
	Value float32 `yaml:"value"`
}

// PropertyEntry is one (id, string value) pair.
type PropertyEntry struct {
	ID    uint32 `yaml:"id"`
	Value string `yaml:"value"`
}

// Session bundles every track/processor snapshot captured at once, keyed by
// a caller-supplied label (typically the track or processor's Name(),
// since numeric ids are not guaranteed stable across a process restart).
type Session struct {
	Processors map[string]ProcessorSnapshot `yaml:"processors"`
}

// FromState converts a live ProcessorState into its serializable form.
func FromState(s plexus.ProcessorState) ProcessorSnapshot {
	params := make([]ParameterEntry, len(s.Parameters))
	for i, p := range s.Parameters {
		params[i] = ParameterEntry{ID: uint32(p.ID), Value: p.Value}
	}
	props := make([]PropertyEntry, len(s.Properties))
	for i, p := range s.Properties {
		props[i] = PropertyEntry{ID: uint32(p.ID), Value: p.Value}
	}
	return ProcessorSnapshot{
		FormatVersion: s.FormatVersion,
		ProcessorUID:  s.ProcessorUID,
		Program:       s.Program,
		Bypass:        s.Bypass,
		Parameters:    params,
		Properties:    props,
	}
}

// ToState converts a deserialized snapshot back into a plexus.ProcessorState
// ready for StateApply.
func ToState(s ProcessorSnapshot) plexus.ProcessorState {
	params := make([]plexus.ParameterValue, len(s.Parameters))
	for i, p := range s.Parameters {
		params[i] = plexus.ParameterValue{ID: plexus.ID(p.ID), Value: p.Value}
	}
	props := make([]plexus.PropertyValue, len(s.Properties))
	for i, p := range s.Properties {
		props[i] = plexus.PropertyValue{ID: plexus.ID(p.ID), Value: p.Value}
	}
	return plexus.ProcessorState{
		FormatVersion: s.FormatVersion,
		ProcessorUID:  s.ProcessorUID,
		Program:       s.Program,
		Bypass:        s.Bypass,
		Parameters:    params,
		Properties:    props,
	}
}

// Marshal serializes a session to YAML bytes.
func Marshal(sess Session) ([]byte, error) {
	return yaml.Marshal(sess)
}

// Unmarshal parses a session from YAML bytes.
func Unmarshal(data []byte) (Session, error) {
	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	return sess, nil
}

// Names returns a session's processor labels in sorted order, for stable
// iteration (e.g. when re-applying a session to a live engine one
// processor at a time).
func (s Session) Names() []string {
	names := make([]string, 0, len(s.Processors))
	for name := range s.Processors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
