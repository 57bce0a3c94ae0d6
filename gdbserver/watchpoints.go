package gdbserver

import (
	"sync"

	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// WatchpointManager owns every hardware watchpoint for one debug session
// and does value-change detection since the VM has no native memory
// access trapping: every watchpoint's last observed byte is recorded and
// compared on each step.
type WatchpointManager struct {
	mu     sync.RWMutex
	points []*trackedWatch
	nextID int
}

type trackedWatch struct {
	Watchpoint
	ID        int
	lastValue uint8
}

// NewWatchpointManager creates an empty manager.
func NewWatchpointManager() *WatchpointManager {
	return &WatchpointManager{}
}

// Add registers a watchpoint and primes its last-known value from m so
// the first CheckHits call after Add doesn't spuriously fire.
func (wm *WatchpointManager) Add(m *vm.Machine, wp Watchpoint) int {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	wm.nextID++
	value, _ := m.Memory.Load8(wp.Addr)
	wm.points = append(wm.points, &trackedWatch{Watchpoint: wp, ID: wm.nextID, lastValue: value})
	return wm.nextID
}

// Remove deletes every watchpoint at addr.
func (wm *WatchpointManager) Remove(addr uint64) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	filtered := wm.points[:0]
	for _, tw := range wm.points {
		if tw.Addr != addr {
			filtered = append(filtered, tw)
		}
	}
	wm.points = filtered
}

// All returns the plain Watchpoint view of every registered entry.
func (wm *WatchpointManager) All() []Watchpoint {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	out := make([]Watchpoint, len(wm.points))
	for i, tw := range wm.points {
		out[i] = tw.Watchpoint
	}
	return out
}

// CheckHits re-reads every tracked address against m and reports the
// first one whose value changed in a direction its kind cares about,
// updating its stored value as it goes so later calls see only new
// changes.
func (wm *WatchpointManager) CheckHits(m *vm.Machine) (Watchpoint, bool) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	for _, tw := range wm.points {
		current, err := m.Memory.Load8(tw.Addr)
		if err != nil {
			continue
		}
		changed := current != tw.lastValue
		tw.lastValue = current
		if changed && (tw.Kind == WatchWrite || tw.Kind == WatchAccess) {
			return tw.Watchpoint, true
		}
	}
	return Watchpoint{}, false
}
