// Package fault defines the single stuck-at fault model.
package fault

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
)

// Fault is a single connection frozen at a constant value
type Fault struct {
	ConnectionID int
	Value        circuit.StuckAt // StuckAt0 or StuckAt1
}

// New creates a fault on connection id stuck at v
func New(id int, v bool) Fault {
	return Fault{ConnectionID: id, Value: circuit.StuckAtValue(v)}
}

// ID returns the stable identifier of the fault, e.g. "12:SA1"
func (f Fault) ID() string {
	return fmt.Sprintf("%d:%s", f.ConnectionID, f.Value)
}

// String returns a string representation of the fault
func (f Fault) String() string {
	return fmt.Sprintf("%d stuck-at-%d", f.ConnectionID, boolToBit(f.Value.Value()))
}

// GenerateFaultList returns the fault universe of the circuit: stuck-at-0
// and stuck-at-1 for every connection, by ascending connection ID.
func GenerateFaultList(c *circuit.Circuit) []Fault {
	conns := c.ConnectionList()
	faults := make([]Fault, 0, 2*len(conns))
	for _, conn := range conns {
		faults = append(faults,
			Fault{ConnectionID: conn.ID, Value: circuit.StuckAt0},
			Fault{ConnectionID: conn.ID, Value: circuit.StuckAt1},
		)
	}
	return faults
}

// Validate checks that every fault targets a connection of the circuit
// and carries a real stuck-at value
func Validate(c *circuit.Circuit, faults []Fault) error {
	for _, f := range faults {
		if c.GetConnection(f.ConnectionID) == nil {
			return &circuit.UnknownFaultTargetError{ConnectionID: f.ConnectionID, Fault: f.ID()}
		}
		if f.Value != circuit.StuckAt0 && f.Value != circuit.StuckAt1 {
			return errors.Errorf("fault on connection %d has no stuck-at value", f.ConnectionID)
		}
	}
	return nil
}

// Dedupe returns faults with repeated entries removed, keeping the first
// occurrence of each
func Dedupe(faults []Fault) []Fault {
	seen := make(map[Fault]bool, len(faults))
	out := make([]Fault, 0, len(faults))
	for _, f := range faults {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Parse parses a fault string like "12:SA0", "12:sa1" or "12/1"
func Parse(s string) (Fault, error) {
	s = strings.TrimSpace(s)

	var idPart, valPart string
	if a, b, ok := strings.Cut(s, ":"); ok {
		idPart, valPart = a, strings.ToUpper(strings.TrimSpace(b))
		valPart = strings.TrimPrefix(valPart, "SA")
	} else if a, b, ok := strings.Cut(s, "/"); ok {
		idPart, valPart = a, strings.TrimSpace(b)
	} else {
		return Fault{}, errors.Errorf("invalid fault string format: %q", s)
	}

	id, err := strconv.Atoi(strings.TrimSpace(idPart))
	if err != nil || id <= 0 {
		return Fault{}, errors.Errorf("invalid connection id in fault %q", s)
	}

	switch valPart {
	case "0":
		return Fault{ConnectionID: id, Value: circuit.StuckAt0}, nil
	case "1":
		return Fault{ConnectionID: id, Value: circuit.StuckAt1}, nil
	default:
		return Fault{}, errors.Errorf("invalid stuck-at value in fault %q", s)
	}
}

// ParseList parses a comma or whitespace separated list of faults
func ParseList(s string) ([]Fault, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	faults := make([]Fault, 0, len(fields))
	for _, field := range fields {
		f, err := Parse(field)
		if err != nil {
			return nil, err
		}
		faults = append(faults, f)
	}
	return faults, nil
}

func boolToBit(v bool) int {
	if v {
		return 1
	}
	return 0
}
