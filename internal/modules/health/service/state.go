package service

import (
	"sync/atomic"
	"time"
)

// State is the process-wide liveness/readiness record, polled by the
// /livez, /readyz and /healthz handlers. wsConnected/lastTick tracked the
// exchange websocket in the original health module; this engine has no
// websocket, so they're replaced by heartbeats from the three loops that
// actually need to be observed from outside: the Orchestrator's run_cycle,
// the Live Monitor's poll, and the Sentinel's poll.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastCycleUnix   atomic.Int64
	lastMonitorUnix atomic.Int64
	lastSentinelUnix atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) TouchCycle(t time.Time)    { s.lastCycleUnix.Store(t.Unix()) }
func (s *State) TouchMonitor(t time.Time)  { s.lastMonitorUnix.Store(t.Unix()) }
func (s *State) TouchSentinel(t time.Time) { s.lastSentinelUnix.Store(t.Unix()) }

func (s *State) LastCycle() time.Time    { return unixOrZero(s.lastCycleUnix.Load()) }
func (s *State) LastMonitor() time.Time  { return unixOrZero(s.lastMonitorUnix.Load()) }
func (s *State) LastSentinel() time.Time { return unixOrZero(s.lastSentinelUnix.Load()) }

func unixOrZero(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
