package circuit

import (
	"fmt"
	"sort"
	"strings"
)

// Circuit represents a combinational circuit consisting of gates and connections.
//
// Topology is built with AddInput, AddOutput and AddGate and frozen by
// Finalize. After Finalize only connection values and overrides change,
// and those live in a State. The circuit owns one default State used by
// Evaluate, InjectFault and ClearFault; that state is not safe for
// concurrent use, concurrent callers must take their own with NewState.
//
// A connection that is read by a gate but driven by nothing is a floating
// internal net. It sits at level 0 like a primary input and reads false.
type Circuit struct {
	Name        string
	Gates       map[int]*Gate       // Gates by ID
	Connections map[int]*Connection // All connections by ID
	Inputs      []*Connection       // Primary inputs, in declaration order
	Outputs     []*Connection       // Primary outputs, in declaration order
	Levelized   []*Gate             // Gates sorted by level, then declaration order
	MaxLevel    int                 // Highest gate level

	declared  []*Gate       // Gates in declaration order
	order     []*Connection // Connections by ascending ID; position == Index
	maxFanin  int
	finalized bool
	state     *State
}

// NewCircuit creates a new circuit with the given name
func NewCircuit(name string) *Circuit {
	return &Circuit{
		Name:        name,
		Gates:       make(map[int]*Gate),
		Connections: make(map[int]*Connection),
		Inputs:      make([]*Connection, 0),
		Outputs:     make([]*Connection, 0),
	}
}

// AddConnection returns the connection with the given ID, creating an
// internal connection if it does not exist yet
func (c *Circuit) AddConnection(id int) *Connection {
	if conn, ok := c.Connections[id]; ok {
		return conn
	}
	c.mustBeOpen()
	conn := NewConnection(id)
	c.Connections[id] = conn
	return conn
}

// AddInput declares a primary input
func (c *Circuit) AddInput(id int) error {
	c.mustBeOpen()
	conn := c.AddConnection(id)
	if conn.IsInput {
		return &ValidationError{Reason: fmt.Sprintf("primary input %d declared twice", id)}
	}
	if conn.Driver != nil {
		return &ValidationError{Reason: fmt.Sprintf("primary input %d is driven by a gate", id)}
	}
	conn.IsInput = true
	c.Inputs = append(c.Inputs, conn)
	return nil
}

// AddOutput declares a primary output. The driving gate may be added later.
func (c *Circuit) AddOutput(id int) error {
	c.mustBeOpen()
	conn := c.AddConnection(id)
	if conn.IsOutput {
		return &ValidationError{Reason: fmt.Sprintf("primary output %d declared twice", id)}
	}
	conn.IsOutput = true
	c.Outputs = append(c.Outputs, conn)
	return nil
}

// AddGate adds a gate driving connection outputID from the given inputs
func (c *Circuit) AddGate(outputID int, gateType GateType, inputIDs []int) (*Gate, error) {
	c.mustBeOpen()
	if len(inputIDs) == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("gate %d has no inputs", outputID)}
	}
	if gateType.IsUnary() && len(inputIDs) != 1 {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("gate %d: %s takes exactly one input, got %d", outputID, gateType, len(inputIDs)),
		}
	}

	out := c.AddConnection(outputID)
	if out.IsInput {
		return nil, &ValidationError{Reason: fmt.Sprintf("primary input %d is driven by a gate", outputID)}
	}
	if out.Driver != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("connection %d is driven by more than one gate", outputID)}
	}

	gate := NewGate(outputID, gateType)
	gate.Order = len(c.declared)
	for _, id := range inputIDs {
		gate.AddInput(c.AddConnection(id))
	}
	gate.SetOutput(out)

	c.Gates[gate.ID] = gate
	c.declared = append(c.declared, gate)
	return gate, nil
}

// Finalize validates the circuit, levelizes its gates and freezes the topology
func (c *Circuit) Finalize() error {
	if c.finalized {
		return nil
	}
	if err := c.validate(); err != nil {
		return err
	}

	ids := make([]int, 0, len(c.Connections))
	for id := range c.Connections {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	c.order = make([]*Connection, len(ids))
	for i, id := range ids {
		conn := c.Connections[id]
		conn.Index = i
		c.order[i] = conn
	}

	if err := c.levelize(); err != nil {
		return err
	}

	for _, gate := range c.declared {
		if len(gate.Inputs) > c.maxFanin {
			c.maxFanin = len(gate.Inputs)
		}
	}

	c.finalized = true
	c.state = newState(c)
	return nil
}

// validate checks the structural invariants that do not need levels
func (c *Circuit) validate() error {
	var missing []string
	if len(c.Inputs) == 0 {
		missing = append(missing, "primary inputs")
	}
	if len(c.Outputs) == 0 {
		missing = append(missing, "primary outputs")
	}
	if len(c.declared) == 0 {
		missing = append(missing, "gates")
	}
	if len(missing) > 0 {
		return &ValidationError{Reason: "no " + strings.Join(missing, ", no ")}
	}

	for _, out := range c.Outputs {
		if out.Driver == nil && !out.IsInput {
			return &ValidationError{Reason: fmt.Sprintf("primary output %d is not driven", out.ID)}
		}
	}
	return nil
}

func (c *Circuit) mustBeOpen() {
	if c.finalized {
		panic("circuit: topology modified after Finalize")
	}
}

// IsFinalized returns true once Finalize has succeeded
func (c *Circuit) IsFinalized() bool {
	return c.finalized
}

// GetGate returns a gate by ID
func (c *Circuit) GetGate(id int) *Gate {
	return c.Gates[id]
}

// GetConnection returns a connection by ID
func (c *Circuit) GetConnection(id int) *Connection {
	return c.Connections[id]
}

// ConnectionList returns all connections ordered by ascending ID.
// The returned slice must not be modified.
func (c *Circuit) ConnectionList() []*Connection {
	return c.order
}

// DeclaredGates returns the gates in netlist declaration order.
// The returned slice must not be modified.
func (c *Circuit) DeclaredGates() []*Gate {
	return c.declared
}

// NewState returns a fresh, isolated mutable state for this circuit:
// all values false, no overrides.
func (c *Circuit) NewState() *State {
	if !c.finalized {
		panic("circuit: NewState before Finalize")
	}
	return newState(c)
}

// State returns the circuit's default state
func (c *Circuit) State() *State {
	return c.state
}

// Evaluate evaluates the circuit on its default state
func (c *Circuit) Evaluate(inputs []bool) ([]bool, error) {
	return c.state.Evaluate(inputs)
}

// InjectFault sets a stuck-at override on a connection of the default state
func (c *Circuit) InjectFault(id int, value StuckAt) error {
	conn, ok := c.Connections[id]
	if !ok {
		return &UnknownFaultTargetError{ConnectionID: id}
	}
	c.state.SetStuck(conn, value)
	return nil
}

// ClearFault removes the override of a connection of the default state
func (c *Circuit) ClearFault(id int) error {
	conn, ok := c.Connections[id]
	if !ok {
		return &UnknownFaultTargetError{ConnectionID: id}
	}
	c.state.ClearStuck(conn)
	return nil
}

// ClearFaults removes every override of the default state
func (c *Circuit) ClearFaults() {
	c.state.ClearAllStuck()
}

// String returns a string representation of the circuit
func (c *Circuit) String() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Circuit: %s\n", c.Name))

	builder.WriteString("Inputs: ")
	for _, in := range c.Inputs {
		builder.WriteString(fmt.Sprintf("%d ", in.ID))
	}

	builder.WriteString("\nOutputs: ")
	for _, out := range c.Outputs {
		builder.WriteString(fmt.Sprintf("%d ", out.ID))
	}

	builder.WriteString("\nGates:\n")
	gates := c.Levelized
	if gates == nil {
		gates = c.declared
	}
	for _, gate := range gates {
		builder.WriteString(fmt.Sprintf("  [L%d] %s\n", gate.Level, gate))
	}

	return builder.String()
}
