package motion

import (
	"math"
	"time"

	"github.com/motioncore/stservoctl/session"
)

// nextSweep implements the Sweep rule: next = clamp(current +
// direction*speed, start, end); at or past a boundary, invert direction,
// snap to the boundary, and count a cycle. Returns (position, emit) where
// emit is false only for the degenerate start==end configuration.
func nextSweep(rec *session.PatternRecord) (int, bool) {
	sp := rec.Sweep
	if sp.StartPosition == sp.EndPosition {
		return sp.StartPosition, false
	}

	current := rec.CurrentPosition()
	next := current + sp.Direction*rec.Speed

	if sp.Direction >= 0 {
		if next >= sp.EndPosition {
			next = sp.EndPosition
			rec.Sweep.Direction = -1
			rec.IncrementCycleCount()
		}
	} else {
		if next <= sp.StartPosition {
			next = sp.StartPosition
			rec.Sweep.Direction = 1
			rec.IncrementCycleCount()
		}
	}
	return next, true
}

// nextWave implements the Wave rule: next = round(center +
// amplitude*sin(2*pi*frequency*(now-t0))), clamped to [0,4095] by the
// caller. amplitude == 0 holds at center.
func nextWave(rec *session.PatternRecord, now time.Time) int {
	wp := rec.Wave
	if wp.Amplitude == 0 {
		return wp.CenterPosition
	}
	elapsed := now.Sub(wp.T0).Seconds()
	val := float64(wp.CenterPosition) + float64(wp.Amplitude)*math.Sin(2*math.Pi*wp.FrequencyHz*elapsed)
	return int(math.Round(val))
}

// rotationSignedSpeed implements the Rotation rule: signed_speed =
// speed * direction. Position carries no setpoint for Rotation; the record's
// CurrentPosition is informational only and left untouched.
func rotationSignedSpeed(rec *session.PatternRecord) int {
	return rec.Speed * rec.Rotation.Direction
}

// applyAngleClamp clamps raw to the record's angle limits and, for Sweep, inverts direction when the clamp actually
// moved the value away from the pattern's own computed boundary.
func applyAngleClamp(rec *session.PatternRecord, raw int) int {
	clamped := rec.AngleLimits.Clamp(raw)
	if rec.Kind == session.Sweep && clamped != raw {
		rec.Sweep.Direction = -rec.Sweep.Direction
	}
	return clamped
}
