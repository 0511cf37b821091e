// Package session holds the Servo Session State: the
// discovery map, the per-servo PatternRecord, worker liveness handles, and
// the connection state, guarded by a two-lock discipline: state_mutex for
// membership, pause_mutex for flags.
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// ServoID is a bus address in [0, MaxServoID]. BroadcastID is reserved and
// never used for per-servo writes.
type ServoID byte

// BroadcastID is the reserved address 254.
const BroadcastID ServoID = 254

// MaxServoID is the highest valid per-servo address.
const MaxServoID ServoID = 253

// Valid reports whether id is a usable per-servo address.
func (id ServoID) Valid() bool { return id <= MaxServoID }

// PatternKind names the three built-in motion patterns.
type PatternKind int

const (
	Sweep PatternKind = iota
	Wave
	Rotation
)

func (k PatternKind) String() string {
	switch k {
	case Sweep:
		return "sweep"
	case Wave:
		return "wave"
	case Rotation:
		return "rotation"
	default:
		return "unknown"
	}
}

// AngleLimits clamps every computed setpoint when Enabled, and causes a
// Sweep boundary hit to invert direction.
type AngleLimits struct {
	Enabled  bool
	Min, Max int
}

// Clamp restricts pos to [0, 4095] and, if enabled, to [Min, Max].
func (a AngleLimits) Clamp(pos int) int {
	if pos < PositionMin {
		pos = PositionMin
	}
	if pos > PositionMax {
		pos = PositionMax
	}
	if a.Enabled {
		if pos < a.Min {
			pos = a.Min
		}
		if pos > a.Max {
			pos = a.Max
		}
	}
	return pos
}

// PositionRange mirrors protocol.PositionMin/Max without importing protocol,
// keeping this package free of a dependency on the wire layer.
const (
	PositionMin = 0
	PositionMax = 4095
)

// SweepParams is the Sweep-kind-specific configuration.
type SweepParams struct {
	StartPosition, EndPosition int
	Direction                  int // +1 or -1
}

// WaveParams is the Wave-kind-specific configuration.
type WaveParams struct {
	CenterPosition int
	Amplitude      int
	FrequencyHz    float64
	T0             time.Time
}

// RotationParams is the Rotation-kind-specific configuration.
type RotationParams struct {
	Direction int // +1 (CCW) or -1 (CW)
}

// Telemetry is the last-known snapshot a worker or the façade published.
// Single-writer, single-reader; readers accept stale values.
type Telemetry struct {
	Position      int
	Speed         int
	Moving        bool
	GoalPosition  int
	GoalSpeed     int
	Acceleration  int
	Mode          int
	VoltageV      float64
	TemperatureC  int
	CurrentMA     int
	Load          int
	TorqueEnabled bool
	UpdatedAt     time.Time
	Degraded      map[string]bool // channel name -> true if exhausted recovery (N/A)
}

// Flags is the independently-mutable pause/stop protocol triad plus Running,
// all guarded by the owning State's pause_mutex.
type Flags struct {
	Running       bool
	Paused        bool
	ImmediateStop bool
	EmergencyStop bool
}

// PatternRecord is the per-servo motion-command record. Flags are
// guarded by the owning State's pause_mutex; CurrentPosition/CycleCount are
// atomics (single-writer-the-worker, multi-reader, stale reads accepted)
// so telemetry/status reads never race with the worker's writes.
type PatternRecord struct {
	Kind         PatternKind
	Speed        int
	Acceleration int
	CyclesTarget int

	cycleCount      atomic.Int64
	currentPosition atomic.Int64

	Sweep    SweepParams
	Wave     WaveParams
	Rotation RotationParams

	AngleLimits AngleLimits

	flags Flags

	heartbeat atomic.Int64 // unix nano, published by the worker each loop tick

	telemetryMu sync.Mutex
	telemetry   Telemetry
}

// CurrentPosition / SetCurrentPosition access the last commanded setpoint.
func (r *PatternRecord) CurrentPosition() int        { return int(r.currentPosition.Load()) }
func (r *PatternRecord) SetCurrentPosition(pos int)   { r.currentPosition.Store(int64(pos)) }

// CycleCount / IncrementCycleCount access the completed-cycle counter.
func (r *PatternRecord) CycleCount() int { return int(r.cycleCount.Load()) }
func (r *PatternRecord) IncrementCycleCount() int64 {
	return r.cycleCount.Add(1)
}

// CyclesDone reports whether a finite pattern has reached its target; a
// negative CyclesTarget means infinite and never reports done.
func (r *PatternRecord) CyclesDone() bool {
	if r.CyclesTarget < 0 {
		return false
	}
	return r.CycleCount() >= r.CyclesTarget
}

// Heartbeat / Beat let the Supervisor compare the worker's last-seen tick
// against a staleness threshold instead of polling a thread-alive flag.
func (r *PatternRecord) Heartbeat() time.Time {
	nanos := r.heartbeat.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (r *PatternRecord) Beat(now time.Time) {
	r.heartbeat.Store(now.UnixNano())
}

// GetTelemetry returns a copy of the last-published snapshot.
func (r *PatternRecord) GetTelemetry() Telemetry {
	r.telemetryMu.Lock()
	defer r.telemetryMu.Unlock()
	return r.telemetry
}

// SetTelemetry publishes a new snapshot.
func (r *PatternRecord) SetTelemetry(t Telemetry) {
	r.telemetryMu.Lock()
	defer r.telemetryMu.Unlock()
	r.telemetry = t
}

// DiscoveredServo is one entry of a completed discover() sweep.
type DiscoveredServo struct {
	ID          ServoID
	ModelNumber uint16
	FirstSeenAt time.Time
}

// ConnectionState is Disconnected or Open{Port, Baud}; only one may exist
// per process.
type ConnectionState struct {
	Open bool
	Port string
	Baud uint
}

// WorkerHandle is the liveness/cancellation seam a motion worker publishes
// into Session State. Defined here (not in package motion) so session has
// no dependency on motion, keeping the ServoID -> WorkerHandle mapping free
// of an import cycle.
type WorkerHandle interface {
	// Alive reports whether the worker goroutine is still running.
	Alive() bool
	// RequestStop asks the worker to exit its loop (sets Running=false is
	// done by the caller separately; this additionally unblocks any sleep).
	RequestStop()
	// Joined blocks until the worker has exited or the timeout elapses,
	// reporting whether it exited in time.
	Joined(timeout time.Duration) bool
}
