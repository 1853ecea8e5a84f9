package circuit

import (
	"fmt"
	"strings"
)

// GateType represents the type of logic gate
type GateType int

const (
	AND GateType = iota
	OR
	NAND
	NOR
	XOR
	NOT
	BUFF // Non-inverting buffer
)

// String returns a string representation of the gate type
func (gt GateType) String() string {
	switch gt {
	case AND:
		return "AND"
	case OR:
		return "OR"
	case NAND:
		return "NAND"
	case NOR:
		return "NOR"
	case XOR:
		return "XOR"
	case NOT:
		return "NOT"
	case BUFF:
		return "BUFF"
	default:
		return "UNKNOWN"
	}
}

// ParseGateType converts a gate name to a GateType, ignoring case
func ParseGateType(name string) (GateType, bool) {
	switch strings.ToUpper(name) {
	case "AND":
		return AND, true
	case "OR":
		return OR, true
	case "NAND":
		return NAND, true
	case "NOR":
		return NOR, true
	case "XOR":
		return XOR, true
	case "NOT":
		return NOT, true
	case "BUFF":
		return BUFF, true
	default:
		return 0, false
	}
}

// IsUnary returns true for gate types that take exactly one input
func (gt GateType) IsUnary() bool {
	return gt == NOT || gt == BUFF
}

// Gate represents a logic gate in the circuit
type Gate struct {
	ID     int           // Unique identifier (the ID of the driven connection)
	Order  int           // Declaration order in the netlist
	Level  int           // Topological level, assigned by Finalize
	Type   GateType      // Type of the gate
	Inputs []*Connection // Input connections, in declaration order
	Output *Connection   // Output connection
}

// NewGate creates a new gate with the given parameters
func NewGate(id int, gateType GateType) *Gate {
	return &Gate{
		ID:     id,
		Type:   gateType,
		Inputs: make([]*Connection, 0),
	}
}

// AddInput adds an input connection to the gate
func (g *Gate) AddInput(conn *Connection) {
	g.Inputs = append(g.Inputs, conn)
	conn.addFanout(g)
}

// SetOutput sets the output connection of the gate
func (g *Gate) SetOutput(conn *Connection) {
	g.Output = conn
	conn.Driver = g
}

// String returns a string representation of the gate
func (g *Gate) String() string {
	ids := make([]string, len(g.Inputs))
	for i, in := range g.Inputs {
		ids[i] = fmt.Sprint(in.ID)
	}
	return fmt.Sprintf("%d = %s(%s)", g.ID, g.Type, strings.Join(ids, ", "))
}

// Eval computes the boolean function of the gate type over the given input values
func (gt GateType) Eval(inputs []bool) bool {
	switch gt {
	case AND:
		return evalAND(inputs)
	case OR:
		return evalOR(inputs)
	case NAND:
		return !evalAND(inputs)
	case NOR:
		return !evalOR(inputs)
	case XOR:
		return evalXOR(inputs)
	case NOT:
		return !inputs[0]
	case BUFF:
		return inputs[0]
	default:
		panic(fmt.Sprintf("circuit: evaluating unknown gate type %d", int(gt)))
	}
}

func evalAND(inputs []bool) bool {
	for _, v := range inputs {
		if !v {
			return false // Short-circuit for AND gate
		}
	}
	return true
}

func evalOR(inputs []bool) bool {
	for _, v := range inputs {
		if v {
			return true // Short-circuit for OR gate
		}
	}
	return false
}

// evalXOR folds all inputs, so any arity yields the parity
func evalXOR(inputs []bool) bool {
	result := false
	for _, v := range inputs {
		result = result != v
	}
	return result
}
