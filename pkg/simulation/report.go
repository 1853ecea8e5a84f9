package simulation

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fyerfyer/fault-sim/pkg/fault"
)

// Mode selects how faults are scheduled
type Mode string

const (
	Serial   Mode = "serial"
	Parallel Mode = "parallel"
)

// ParseMode converts a mode name to a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Serial, Parallel:
		return Mode(s), nil
	default:
		return "", errors.Errorf("unknown simulation mode %q (expected serial or parallel)", s)
	}
}

// Result is the outcome of simulating one fault against the vector set
type Result struct {
	Fault           fault.Fault `json:"-"`
	FaultID         string      `json:"fault"`
	Detected        bool        `json:"detected"`
	VectorIndex     int         `json:"vector_index"` // -1 when undetected
	DetectingVector []bool      `json:"detecting_vector,omitempty"`
	FaultyOutputs   []bool      `json:"faulty_outputs,omitempty"`
}

// Stats contains statistics about a simulation run
type Stats struct {
	Evaluations int64         `json:"evaluations"` // Circuit evaluations, golden runs included
	Workers     int           `json:"workers"`
	TotalTime   time.Duration `json:"total_time_ns"`
}

// Report is the coverage report of a simulation run
type Report struct {
	RunID        string            `json:"run_id"`
	Circuit      string            `json:"circuit"`
	Mode         Mode              `json:"mode"`
	Vectors      int               `json:"vectors"`
	Total        int               `json:"total"`
	Detected     int               `json:"detected"`
	Undetectable int               `json:"undetectable"`
	Coverage     float64           `json:"coverage"`
	Results      map[string]Result `json:"results"`
	Order        []string          `json:"order"` // Fault IDs in fault-list order
	Stats        Stats             `json:"stats"`
}

// DetectedFaults returns the IDs of detected faults in fault-list order
func (r *Report) DetectedFaults() []string {
	return r.filter(true)
}

// UndetectableFaults returns the IDs of undetected faults in fault-list order
func (r *Report) UndetectableFaults() []string {
	return r.filter(false)
}

func (r *Report) filter(detected bool) []string {
	ids := make([]string, 0)
	for _, id := range r.Order {
		if r.Results[id].Detected == detected {
			ids = append(ids, id)
		}
	}
	return ids
}

// newReport merges per-fault results, indexed like faults, into a report
func newReport(circuitName string, mode Mode, vectors int, faults []fault.Fault, results []Result) *Report {
	report := &Report{
		Circuit: circuitName,
		Mode:    mode,
		Vectors: vectors,
		Total:   len(faults),
		Results: make(map[string]Result, len(faults)),
		Order:   make([]string, len(faults)),
	}

	for i, f := range faults {
		res := results[i]
		res.Fault = f
		res.FaultID = f.ID()
		report.Results[res.FaultID] = res
		report.Order[i] = res.FaultID
		if res.Detected {
			report.Detected++
		} else {
			report.Undetectable++
		}
	}

	if report.Total > 0 {
		report.Coverage = float64(report.Detected) / float64(report.Total)
	}
	return report
}

// Equivalent returns an error describing the first difference between the
// classification content of two reports. Run metadata is ignored.
func Equivalent(a, b *Report) error {
	if a.Total != b.Total || a.Detected != b.Detected || a.Undetectable != b.Undetectable {
		return errors.Errorf("counts differ: %d/%d/%d vs %d/%d/%d",
			a.Total, a.Detected, a.Undetectable, b.Total, b.Detected, b.Undetectable)
	}
	if a.Coverage != b.Coverage {
		return errors.Errorf("coverage differs: %f vs %f", a.Coverage, b.Coverage)
	}
	for id, ra := range a.Results {
		rb, ok := b.Results[id]
		if !ok {
			return errors.Errorf("fault %s missing from second report", id)
		}
		if ra.Detected != rb.Detected || ra.VectorIndex != rb.VectorIndex {
			return errors.Errorf("fault %s: detected=%v at %d vs detected=%v at %d",
				id, ra.Detected, ra.VectorIndex, rb.Detected, rb.VectorIndex)
		}
		if !equalBits(ra.FaultyOutputs, rb.FaultyOutputs) {
			return errors.Errorf("fault %s: faulty outputs differ", id)
		}
	}
	return nil
}

func equalBits(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneBits(v []bool) []bool {
	out := make([]bool, len(v))
	copy(out, v)
	return out
}
