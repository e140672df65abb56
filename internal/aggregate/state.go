package aggregate

import (
	"context"
	"strconv"

	"github.com/landreg/housesync/internal/store"
)

// State is where the orchestrator stands for the current run. It is
// derived from a settings snapshot, never held in memory across runs.
type State int

const (
	// StateIdle: nothing new since the last aggregation.
	StateIdle State = iota
	// StateDue: last_updated is strictly newer than
	// last_aggregated_counties.
	StateDue
	// StateWaiting: the control settings gate is incomplete, so the
	// orchestrator holds off.
	StateWaiting
	// StateAggregating: a previous aggregation still holds the flag.
	StateAggregating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDue:
		return "DUE"
	case StateWaiting:
		return "WAITING"
	case StateAggregating:
		return "AGGREGATING"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is one consistent read of the four control settings.
type Snapshot struct {
	UpdateHash        string
	HasUpdateHash     bool
	LastUpdated       float64
	HasLastUpdated    bool
	LastAggregated    float64
	HasLastAggregated bool
	Aggregating       bool
	HasAggregating    bool
}

// gateComplete reports whether all four control settings exist. The
// orchestrator only proceeds past WAITING once they do.
func (s Snapshot) gateComplete() bool {
	return s.HasUpdateHash && s.HasLastUpdated && s.HasLastAggregated && s.HasAggregating
}

// Evaluate maps a snapshot to the orchestrator state. Equal or older
// last_updated timestamps never reach DUE, so no aggregation calls are
// issued for them.
func Evaluate(s Snapshot) State {
	if !s.gateComplete() {
		return StateWaiting
	}
	if s.Aggregating {
		return StateAggregating
	}
	if s.LastUpdated > s.LastAggregated {
		return StateDue
	}
	return StateIdle
}

func takeSnapshot(ctx context.Context, st store.Store) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.UpdateHash, snap.HasUpdateHash, err = st.Setting(ctx, store.KeyUpdateHash); err != nil {
		return snap, err
	}

	raw, ok, err := st.Setting(ctx, store.KeyLastUpdated)
	if err != nil {
		return snap, err
	}
	if ok {
		if snap.LastUpdated, err = strconv.ParseFloat(raw, 64); err == nil {
			snap.HasLastUpdated = true
		}
	}

	raw, ok, err = st.Setting(ctx, store.KeyLastAggregated)
	if err != nil {
		return snap, err
	}
	if ok {
		if snap.LastAggregated, err = strconv.ParseFloat(raw, 64); err == nil {
			snap.HasLastAggregated = true
		}
	}

	raw, ok, err = st.Setting(ctx, store.KeyAggregatingCounties)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.HasAggregating = true
		snap.Aggregating = raw == "true"
	}

	return snap, nil
}
