package controller

import (
	"github.com/motioncore/stservoctl/session"
	"github.com/motioncore/stservoctl/supervisor"
)

// ConnectionStatus is status()'s result: the current connection plus
// whatever the most recent discover() found.
type ConnectionStatus struct {
	Connected  bool
	Port       string
	Baud       uint
	Discovered map[session.ServoID]session.DiscoveredServo
}

// Status returns the current connection state and discovered map.
func (c *Controller) Status() ConnectionStatus {
	conn := c.state.Connection()
	return ConnectionStatus{
		Connected:  conn.Open,
		Port:       conn.Port,
		Baud:       conn.Baud,
		Discovered: c.state.Discovered(),
	}
}

// PatternStatus is one servo's real-time status: its pattern configuration,
// flags, progress, and last-published telemetry.
type PatternStatus struct {
	ID              session.ServoID
	Kind            session.PatternKind
	Running         bool
	Paused          bool
	CycleCount      int
	CyclesTarget    int
	CurrentPosition int
	Telemetry       session.Telemetry
}

// AllPatternStatus snapshots every actively-commanded servo's status, used
// by the all-status and real-time-status endpoints.
func (c *Controller) AllPatternStatus() map[session.ServoID]PatternStatus {
	records := c.state.AllRecords()
	out := make(map[session.ServoID]PatternStatus, len(records))
	for id, rec := range records {
		flags := c.state.Flags(id)
		out[id] = PatternStatus{
			ID:              id,
			Kind:            rec.Kind,
			Running:         flags.Running,
			Paused:          flags.Paused,
			CycleCount:      rec.CycleCount(),
			CyclesTarget:    rec.CyclesTarget,
			CurrentPosition: rec.CurrentPosition(),
			Telemetry:       rec.GetTelemetry(),
		}
	}
	return out
}

// trackedTelemetryChannels is the count of channels publishTelemetry can
// mark degraded (see controller/telemetry.go's markDegradedChannel calls),
// used as the denominator for CommunicationQuality.
const trackedTelemetryChannels = 6

// Diagnostics is system/diagnostics's result: connection state, active
// pattern count, the Supervisor's most recent sweep, and a process-wide
// communication-quality score.
type Diagnostics struct {
	Connection     ConnectionStatus
	ActiveServos   int
	SupervisorRun  bool
	SupervisorLast supervisor.Stats

	// CommunicationQuality is the fraction, in [0, 1], of recent telemetry
	// channels and supervisor health-check pings that succeeded without
	// exhausting the recovery ladder (spec.md §4.H's "N/A-rate statistics").
	// 1 when nothing has been read yet or nothing is degraded.
	CommunicationQuality float64
}

// Diagnostics aggregates connection, active-pattern, and supervisor state
// for the aggregate diagnostics/health-check endpoints.
func (c *Controller) Diagnostics() Diagnostics {
	records := c.state.AllRecords()

	var degradedChannels, totalChannels int
	for _, rec := range records {
		totalChannels += trackedTelemetryChannels
		n := len(rec.GetTelemetry().Degraded)
		if n > trackedTelemetryChannels {
			n = trackedTelemetryChannels
		}
		degradedChannels += n
	}
	quality := 1.0
	if totalChannels > 0 {
		quality = 1 - float64(degradedChannels)/float64(totalChannels)
	}

	sweep := c.sup.Stats()
	if sweep.ServosChecked > 0 {
		pingQuality := 1 - float64(sweep.HealthCheckFails)/float64(sweep.ServosChecked)
		quality = (quality + pingQuality) / 2
	}

	return Diagnostics{
		Connection:           c.Status(),
		ActiveServos:         len(records),
		SupervisorRun:        c.sup.Running(),
		SupervisorLast:       sweep,
		CommunicationQuality: quality,
	}
}
