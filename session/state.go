package session

import (
	"sync"
	"time"
)

// State is the process-wide Servo Session State: a
// ServoID -> PatternRecord map and a parallel ServoID -> WorkerHandle map,
// a discovered-servo map, and the connection state.
//
// stateMu guards membership: creation/deletion of records, allocation of
// worker handles, and the connection/discovered maps. pauseMu is a strictly
// finer lock acquired only around the Flags triad (running/paused/
// immediate_stop/emergency_stop) and is never taken while holding the bus
// lock. Constructed once per process and passed by reference.
type State struct {
	stateMu sync.Mutex
	pauseMu sync.Mutex

	conn ConnectionState

	discoveredMu sync.RWMutex
	discovered   map[ServoID]DiscoveredServo

	records map[ServoID]*PatternRecord
	workers map[ServoID]WorkerHandle
}

// New returns an empty, disconnected State.
func New() *State {
	return &State{
		discovered: make(map[ServoID]DiscoveredServo),
		records:    make(map[ServoID]*PatternRecord),
		workers:    make(map[ServoID]WorkerHandle),
	}
}

// Connection returns the current ConnectionState.
func (s *State) Connection() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.conn
}

// SetConnection replaces the ConnectionState.
func (s *State) SetConnection(c ConnectionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.conn = c
}

// ReplaceDiscovered atomically swaps in a freshly-probed discovered map.
func (s *State) ReplaceDiscovered(found map[ServoID]DiscoveredServo) {
	s.discoveredMu.Lock()
	defer s.discoveredMu.Unlock()
	s.discovered = found
}

// Discovered returns a copy of the discovered-servo map.
func (s *State) Discovered() map[ServoID]DiscoveredServo {
	s.discoveredMu.RLock()
	defer s.discoveredMu.RUnlock()
	out := make(map[ServoID]DiscoveredServo, len(s.discovered))
	for k, v := range s.discovered {
		out[k] = v
	}
	return out
}

// ClearDiscovered empties the discovered map (disconnect).
func (s *State) ClearDiscovered() {
	s.discoveredMu.Lock()
	defer s.discoveredMu.Unlock()
	s.discovered = make(map[ServoID]DiscoveredServo)
}

// CreateRecord installs rec for id, replacing any prior record. The caller is
// responsible for having stopped any prior worker first.
func (s *State) CreateRecord(id ServoID, rec *PatternRecord) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.records[id] = rec
}

// Record returns the PatternRecord for id, if any.
func (s *State) Record(id ServoID) (*PatternRecord, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// DeleteRecord removes the record and worker handle for id. Callers must
// only do this after the worker has exited and the façade has confirmed
// final hold-in-place.
func (s *State) DeleteRecord(id ServoID) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	delete(s.records, id)
	delete(s.workers, id)
}

// AllRecords returns a snapshot of every (id, record) pair currently
// tracked, used by the Supervisor's periodic sweep.
func (s *State) AllRecords() map[ServoID]*PatternRecord {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	out := make(map[ServoID]*PatternRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// SetWorker installs the liveness handle for id's worker.
func (s *State) SetWorker(id ServoID, w WorkerHandle) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.workers[id] = w
}

// Worker returns the liveness handle for id, if any.
func (s *State) Worker(id ServoID) (WorkerHandle, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	w, ok := s.workers[id]
	return w, ok
}

// --- Flags: guarded by pauseMu, never taken while holding the bus lock ---

// Flags returns a copy of id's current flag set. Returns the zero value if
// id has no record.
func (s *State) Flags(id ServoID) Flags {
	rec, ok := s.Record(id)
	if !ok {
		return Flags{}
	}
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return rec.flags
}

// SetRunning sets the Running flag for id, if a record exists.
func (s *State) SetRunning(id ServoID, running bool) {
	rec, ok := s.Record(id)
	if !ok {
		return
	}
	s.pauseMu.Lock()
	rec.flags.Running = running
	s.pauseMu.Unlock()
}

// BeginPause asserts ImmediateStop, EmergencyStop and Paused under pauseMu.
// A short sleep after this call lets the worker observe the flags before
// the façade issues the hold command.
func (s *State) BeginPause(id ServoID) {
	rec, ok := s.Record(id)
	if !ok {
		return
	}
	s.pauseMu.Lock()
	rec.flags.ImmediateStop = true
	rec.flags.EmergencyStop = true
	rec.flags.Paused = true
	s.pauseMu.Unlock()
}

// ClearEmergencyStop clears EmergencyStop while leaving ImmediateStop and
// Paused set, once the hold command has been issued.
func (s *State) ClearEmergencyStop(id ServoID) {
	rec, ok := s.Record(id)
	if !ok {
		return
	}
	s.pauseMu.Lock()
	rec.flags.EmergencyStop = false
	s.pauseMu.Unlock()
}

// Resume clears Paused and ImmediateStop.
func (s *State) Resume(id ServoID) {
	rec, ok := s.Record(id)
	if !ok {
		return
	}
	s.pauseMu.Lock()
	rec.flags.Paused = false
	rec.flags.ImmediateStop = false
	s.pauseMu.Unlock()
}

// CheckStopFlags reports (immediateStop || emergencyStop, paused) for id
// under pauseMu; this is the worker's check-then-act read.
func (s *State) CheckStopFlags(id ServoID) (stopAsserted, paused bool) {
	rec, ok := s.Record(id)
	if !ok {
		return true, false
	}
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return rec.flags.ImmediateStop || rec.flags.EmergencyStop, rec.flags.Paused
}

// IsRunning reports the Running flag for id.
func (s *State) IsRunning(id ServoID) bool {
	rec, ok := s.Record(id)
	if !ok {
		return false
	}
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	return rec.flags.Running
}

// StaleWorkers returns the ids whose record is Running==true but whose
// worker handle is missing, not alive, or hasn't beaten within staleness;
// used by the Supervisor.
func (s *State) StaleWorkers(now time.Time, staleness time.Duration) []ServoID {
	var stale []ServoID
	for id, rec := range s.AllRecords() {
		if !s.IsRunning(id) {
			continue
		}
		w, ok := s.Worker(id)
		if !ok || !w.Alive() {
			stale = append(stale, id)
			continue
		}
		hb := rec.Heartbeat()
		if hb.IsZero() {
			continue // not yet ticked once; give it a chance
		}
		if now.Sub(hb) > staleness {
			stale = append(stale, id)
		}
	}
	return stale
}
