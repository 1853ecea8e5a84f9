package circuit

import (
	"fmt"
	"strings"
)

// MalformedLineError reports a netlist line that does not match the grammar
type MalformedLineError struct {
	Line   int    // 1-based line number
	Text   string // Raw line text
	Reason string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("line %d: malformed line %q: %s", e.Line, e.Text, e.Reason)
}

// UnknownGateTypeError reports a gate line whose type is not in the supported set
type UnknownGateTypeError struct {
	Line int
	Text string
	Type string
}

func (e *UnknownGateTypeError) Error() string {
	return fmt.Sprintf("line %d: unknown gate type %q in %q", e.Line, e.Type, e.Text)
}

// ValidationError reports a structurally invalid circuit
type ValidationError struct {
	Line   int // 0 when the problem is not tied to a single line
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: invalid circuit: %s", e.Line, e.Reason)
	}
	return "invalid circuit: " + e.Reason
}

// CombinationalCycleError reports a feedback loop among gates.
// Gates holds the IDs of the gates that could not be levelized.
type CombinationalCycleError struct {
	Gates []int
}

func (e *CombinationalCycleError) Error() string {
	ids := make([]string, len(e.Gates))
	for i, id := range e.Gates {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("combinational cycle through gates [%s]", strings.Join(ids, " "))
}

// InputSizeMismatchError reports a vector whose width does not match the circuit
type InputSizeMismatchError struct {
	Expected int
	Actual   int
}

func (e *InputSizeMismatchError) Error() string {
	return fmt.Sprintf("input vector has %d values, circuit has %d primary inputs", e.Actual, e.Expected)
}

// UnknownFaultTargetError reports a fault on a connection absent from the circuit
type UnknownFaultTargetError struct {
	ConnectionID int
	Fault        string // Fault identifier, if known
}

func (e *UnknownFaultTargetError) Error() string {
	if e.Fault != "" {
		return fmt.Sprintf("fault %s targets unknown connection %d", e.Fault, e.ConnectionID)
	}
	return fmt.Sprintf("unknown fault target connection %d", e.ConnectionID)
}
