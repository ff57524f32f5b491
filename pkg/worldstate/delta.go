package worldstate

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// DeltaPacket is the difference between two world snapshots, suitable for
// wire transmission: entities that changed are sent in full, entities that
// didn't are omitted entirely.
type DeltaPacket struct {
	BaseTick   uint64
	TargetTick uint64
	Added      map[EntityID]EntityState
	Modified   map[EntityID]EntityState
	Removed    []EntityID
}

// DeltaEncoder tracks a rolling baseline and emits packets describing only
// what changed since it.
type DeltaEncoder struct {
	mu       sync.RWMutex
	baseline *WorldSnapshot
}

// NewDeltaEncoder creates an encoder with no baseline; the first call to
// Encode establishes one and returns every entity as added.
func NewDeltaEncoder() *DeltaEncoder {
	return &DeltaEncoder{}
}

// Encode computes the delta from the current baseline to snapshot, then
// adopts snapshot as the new baseline.
func (e *DeltaEncoder) Encode(snapshot WorldSnapshot) *DeltaPacket {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.baseline == nil {
		delta := &DeltaPacket{
			BaseTick:   0,
			TargetTick: snapshot.Tick,
			Added:      cloneEntities(snapshot.Entities),
			Modified:   make(map[EntityID]EntityState),
			Removed:    nil,
		}
		e.baseline = &snapshot
		return delta
	}

	delta := &DeltaPacket{
		BaseTick:   e.baseline.Tick,
		TargetTick: snapshot.Tick,
		Added:      make(map[EntityID]EntityState),
		Modified:   make(map[EntityID]EntityState),
	}

	for id, state := range snapshot.Entities {
		baseState, existed := e.baseline.Entities[id]
		switch {
		case !existed:
			delta.Added[id] = state
		case baseState != state:
			delta.Modified[id] = state
		}
	}
	for id := range e.baseline.Entities {
		if _, exists := snapshot.Entities[id]; !exists {
			delta.Removed = append(delta.Removed, id)
		}
	}

	e.baseline = &snapshot

	logrus.WithFields(logrus.Fields{
		"system_name": "worldstate_delta_encoder",
		"base_tick":   delta.BaseTick,
		"target_tick": delta.TargetTick,
		"added":       len(delta.Added),
		"modified":    len(delta.Modified),
		"removed":     len(delta.Removed),
	}).Debug("delta encoded")

	return delta
}

func cloneEntities(src map[EntityID]EntityState) map[EntityID]EntityState {
	dst := make(map[EntityID]EntityState, len(src))
	for id, state := range src {
		dst[id] = state
	}
	return dst
}

// DeltaDecoder reconstructs world snapshots by applying delta packets to a
// baseline received out of band (typically the encoder's first packet).
type DeltaDecoder struct {
	mu       sync.RWMutex
	baseline *WorldSnapshot
}

// NewDeltaDecoder creates a decoder with no baseline set.
func NewDeltaDecoder() *DeltaDecoder {
	return &DeltaDecoder{}
}

// HasBaseline reports whether the decoder has a baseline to apply deltas
// against.
func (d *DeltaDecoder) HasBaseline() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baseline != nil
}

// SetBaseline installs the snapshot that subsequent deltas are relative to.
func (d *DeltaDecoder) SetBaseline(snapshot WorldSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = &snapshot
}

// Apply reconstructs the full snapshot targeted by delta, and adopts it as
// the new baseline.
func (d *DeltaDecoder) Apply(delta *DeltaPacket, remoteTime float64) (WorldSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.baseline == nil {
		return WorldSnapshot{}, fmt.Errorf("worldstate: no baseline set, cannot apply delta for tick %d", delta.TargetTick)
	}
	if delta.BaseTick != d.baseline.Tick {
		return WorldSnapshot{}, fmt.Errorf("worldstate: delta base tick %d does not match decoder baseline %d", delta.BaseTick, d.baseline.Tick)
	}

	result := WorldSnapshot{
		Tick:       delta.TargetTick,
		remoteTime: remoteTime,
		Entities:   cloneEntities(d.baseline.Entities),
	}

	for _, id := range delta.Removed {
		delete(result.Entities, id)
	}
	for id, state := range delta.Added {
		result.Entities[id] = state
	}
	for id, state := range delta.Modified {
		result.Entities[id] = state
	}

	d.baseline = &result

	logrus.WithFields(logrus.Fields{
		"system_name": "worldstate_delta_decoder",
		"base_tick":   delta.BaseTick,
		"target_tick": delta.TargetTick,
		"entities":    len(result.Entities),
	}).Debug("delta applied")

	return result, nil
}

// EncodeWire gob-encodes a delta packet for transmission.
func EncodeWire(delta *DeltaPacket) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(delta); err != nil {
		return nil, fmt.Errorf("worldstate: encode delta: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWire gob-decodes a delta packet received over the wire.
func DecodeWire(data []byte) (*DeltaPacket, error) {
	var delta DeltaPacket
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&delta); err != nil {
		return nil, fmt.Errorf("worldstate: decode delta: %w", err)
	}
	return &delta, nil
}
