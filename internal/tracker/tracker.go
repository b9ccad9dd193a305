// Package tracker maintains per-device sequence continuity state and derives
// a running packet-loss percentage from gaps in the sequence numbers.
package tracker

import (
	"math"
	"sort"
	"sync"

	"github.com/davekhr/telemetry-dashboard/internal/models"
)

// deviceState is the loss accounting for one device. Guarded by its own
// mutex so concurrent packets from the same device serialize while packets
// from different devices proceed in parallel.
type deviceState struct {
	mu             sync.Mutex
	seen           bool
	lastSeq        int64
	cumulativeLost int64
}

// Tracker owns all device loss state for one ingestion process. State is
// process-local: a restart starts every device over as first-seen.
type Tracker struct {
	mu      sync.Mutex
	devices map[string]*deviceState
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{devices: make(map[string]*deviceState)}
}

// Result carries the outcome of recording one packet. LostNow is the number
// of packets this packet's gap inferred lost, zero when there was no gap.
type Result struct {
	LossPercentage float64
	LastSeq        int64
	CumulativeLost int64
	LostNow        int64
}

// RecordAndScore records one received sequence number for a device and
// returns the device's cumulative loss percentage as of this packet.
//
// The first packet from a device initializes its state with zero loss. After
// that, a sequence above last+1 credits the gap to the cumulative lost count;
// duplicates and regressions credit nothing. The last-seen sequence always
// advances to the received value, even backwards. The percentage is
// cumulative lost over the latest sequence number, rounded to 2 decimals;
// sequence 0 scores 0 rather than dividing by zero.
func (t *Tracker) RecordAndScore(deviceID string, seq int64) Result {
	st := t.state(deviceID)

	st.mu.Lock()
	defer st.mu.Unlock()

	var lostNow int64
	if st.seen {
		expected := st.lastSeq + 1
		if seq > expected {
			lostNow = seq - expected
			st.cumulativeLost += lostNow
		}
	}
	st.seen = true
	st.lastSeq = seq

	return Result{
		LossPercentage: lossPercentage(st.cumulativeLost, seq),
		LastSeq:        st.lastSeq,
		CumulativeLost: st.cumulativeLost,
		LostNow:        lostNow,
	}
}

// state returns the deviceState for deviceID, creating it on first sight.
func (t *Tracker) state(deviceID string) *deviceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.devices[deviceID]
	if !ok {
		st = &deviceState{}
		t.devices[deviceID] = st
	}
	return st
}

// Snapshot returns the current state of every tracked device, sorted by
// device ID for stable output.
func (t *Tracker) Snapshot() []models.DeviceSummary {
	t.mu.Lock()
	states := make(map[string]*deviceState, len(t.devices))
	for id, st := range t.devices {
		states[id] = st
	}
	t.mu.Unlock()

	out := make([]models.DeviceSummary, 0, len(states))
	for id, st := range states {
		st.mu.Lock()
		out = append(out, models.DeviceSummary{
			DeviceID:       id,
			LastSeq:        st.lastSeq,
			CumulativeLost: st.cumulativeLost,
			LossPercentage: lossPercentage(st.cumulativeLost, st.lastSeq),
		})
		st.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func lossPercentage(lost, seq int64) float64 {
	if seq <= 0 {
		return 0
	}
	return math.Round(float64(lost)/float64(seq)*100*100) / 100
}
