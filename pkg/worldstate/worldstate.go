// Package worldstate adapts the interpolation engine to a concrete,
// multi-entity payload: a tick of simulated world state carrying typed,
// lerpable fields per entity instead of an untyped component bag.
package worldstate

import (
	"github.com/opd-ai/snapshotinterp/pkg/interpolation"
)

// EntityID identifies one tracked entity across snapshots. The zero value
// never names a real entity.
type EntityID uint64

// EntityState is the lerpable state of one entity at a single tick: a
// position, a heading (interpolated the short way around the compass), and
// a scalar health value.
type EntityState struct {
	PosX, PosY, PosZ float64
	HeadingDegrees   float64
	Health           float64
}

func lerpEntity(t float64, from, to EntityState) EntityState {
	return EntityState{
		PosX:           interpolation.Lerp(from.PosX, to.PosX, t),
		PosY:           interpolation.Lerp(from.PosY, to.PosY, t),
		PosZ:           interpolation.Lerp(from.PosZ, to.PosZ, t),
		HeadingDegrees: interpolation.LerpAngle(from.HeadingDegrees, to.HeadingDegrees, t),
		Health:         interpolation.Lerp(from.Health, to.Health, t),
	}
}

// WorldSnapshot is one tick of world state as received from the remote
// simulation. It implements interpolation.Snapshot[WorldSnapshot].
type WorldSnapshot struct {
	Tick       uint64
	remoteTime float64
	Entities   map[EntityID]EntityState
}

// NewWorldSnapshot builds a snapshot tagged with the remote clock reading it
// arrived with.
func NewWorldSnapshot(tick uint64, remoteTime float64) WorldSnapshot {
	return WorldSnapshot{
		Tick:       tick,
		remoteTime: remoteTime,
		Entities:   make(map[EntityID]EntityState),
	}
}

// RemoteTime implements interpolation.Snapshot.
func (w WorldSnapshot) RemoteTime() float64 {
	return w.remoteTime
}

// Interpolate implements interpolation.Snapshot. Entities present in both
// from and to are lerped; an entity present in only one (spawned or
// despawned between the two ticks) is taken verbatim from whichever side
// has it, rather than interpolated toward a state it never held.
func (w WorldSnapshot) Interpolate(t float64, from, to WorldSnapshot) WorldSnapshot {
	out := WorldSnapshot{
		Tick:       to.Tick,
		remoteTime: to.remoteTime,
		Entities:   make(map[EntityID]EntityState, len(to.Entities)),
	}

	for id, toState := range to.Entities {
		if fromState, ok := from.Entities[id]; ok {
			out.Entities[id] = lerpEntity(t, fromState, toState)
		} else {
			out.Entities[id] = toState
		}
	}
	for id, fromState := range from.Entities {
		if _, ok := to.Entities[id]; !ok {
			out.Entities[id] = fromState
		}
	}

	return out
}

// Set records or overwrites one entity's state for this tick.
func (w *WorldSnapshot) Set(id EntityID, state EntityState) {
	w.Entities[id] = state
}
