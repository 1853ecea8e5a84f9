package circuit

import (
	"fmt"
)

// StuckAt represents the stuck-at override of a connection
type StuckAt int8

const (
	NotStuck StuckAt = iota // Normal read/write behavior
	StuckAt0                // Frozen at logic 0
	StuckAt1                // Frozen at logic 1
)

// String returns a string representation of the override
func (s StuckAt) String() string {
	switch s {
	case NotStuck:
		return "none"
	case StuckAt0:
		return "SA0"
	case StuckAt1:
		return "SA1"
	default:
		return "?"
	}
}

// Value returns the logic value forced by the override
func (s StuckAt) Value() bool {
	return s == StuckAt1
}

// StuckAtValue returns the override that freezes a connection at v
func StuckAtValue(v bool) StuckAt {
	if v {
		return StuckAt1
	}
	return StuckAt0
}

// Connection represents a net in the circuit.
// It carries topology only; values and overrides live in a State.
type Connection struct {
	ID       int     // Unique identifier from the netlist
	Index    int     // Compact index into State slices, assigned by Finalize
	IsInput  bool    // Declared with INPUT(...)
	IsOutput bool    // Declared with OUTPUT(...)
	Driver   *Gate   // Gate driving this connection (nil for primary inputs)
	Fanout   []*Gate // Gates reading this connection
}

// NewConnection creates a new internal connection with the given ID
func NewConnection(id int) *Connection {
	return &Connection{
		ID:     id,
		Index:  -1,
		Fanout: make([]*Gate, 0),
	}
}

// String returns a string representation of the connection
func (c *Connection) String() string {
	switch {
	case c.IsInput && c.IsOutput:
		return fmt.Sprintf("%d(PI,PO)", c.ID)
	case c.IsInput:
		return fmt.Sprintf("%d(PI)", c.ID)
	case c.IsOutput:
		return fmt.Sprintf("%d(PO)", c.ID)
	default:
		return fmt.Sprintf("%d", c.ID)
	}
}

// addFanout adds a gate that reads this connection
func (c *Connection) addFanout(gate *Gate) {
	c.Fanout = append(c.Fanout, gate)
}
