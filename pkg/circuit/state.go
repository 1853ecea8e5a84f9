package circuit

// State holds the mutable part of a circuit: one logic value and one
// stuck-at override per connection, indexed by Connection.Index.
//
// A State belongs to a single goroutine. The topology it points to is
// shared and read-only, so any number of States may evaluate the same
// Circuit concurrently.
type State struct {
	circuit *Circuit
	values  []bool
	stuck   []StuckAt
	scratch []bool // gate input buffer, sized to the widest gate
}

func newState(c *Circuit) *State {
	return &State{
		circuit: c,
		values:  make([]bool, len(c.order)),
		stuck:   make([]StuckAt, len(c.order)),
		scratch: make([]bool, c.maxFanin),
	}
}

// Circuit returns the circuit this state belongs to
func (s *State) Circuit() *Circuit {
	return s.circuit
}

// Get returns the value of the connection; an override always wins
func (s *State) Get(conn *Connection) bool {
	return s.get(conn.Index)
}

// Set writes the value of the connection. It is a no-op while the connection is stuck.
func (s *State) Set(conn *Connection, v bool) {
	s.set(conn.Index, v)
}

// Stuck returns the current override of the connection
func (s *State) Stuck(conn *Connection) StuckAt {
	return s.stuck[conn.Index]
}

// SetStuck sets the override of the connection. NotStuck removes it.
func (s *State) SetStuck(conn *Connection, v StuckAt) {
	s.stuck[conn.Index] = v
}

// ClearStuck removes the override of the connection
func (s *State) ClearStuck(conn *Connection) {
	s.stuck[conn.Index] = NotStuck
}

// ClearAllStuck removes every override
func (s *State) ClearAllStuck() {
	for i := range s.stuck {
		s.stuck[i] = NotStuck
	}
}

// HasStuck returns true if any connection carries an override
func (s *State) HasStuck() bool {
	for _, v := range s.stuck {
		if v != NotStuck {
			return true
		}
	}
	return false
}

// Reset sets every value to false. Overrides are kept.
func (s *State) Reset() {
	for i := range s.values {
		s.values[i] = false
	}
}

func (s *State) get(idx int) bool {
	if st := s.stuck[idx]; st != NotStuck {
		return st.Value()
	}
	return s.values[idx]
}

func (s *State) set(idx int, v bool) {
	if s.stuck[idx] == NotStuck {
		s.values[idx] = v
	}
}

// Evaluate applies the input vector and returns the primary output values.
//
// Inputs are matched to primary inputs in declaration order. Gates are
// evaluated in levelized order. Overrides present in the state are honored
// on every read and write, so a stuck primary input ignores its vector
// entry and a stuck gate output ignores the gate logic.
func (s *State) Evaluate(inputs []bool) ([]bool, error) {
	outputs := make([]bool, len(s.circuit.Outputs))
	if err := s.EvaluateInto(inputs, outputs); err != nil {
		return nil, err
	}
	return outputs, nil
}

// EvaluateInto is Evaluate writing into a caller-provided output slice.
// It panics if outputs does not have one element per primary output.
func (s *State) EvaluateInto(inputs, outputs []bool) error {
	c := s.circuit
	if len(inputs) != len(c.Inputs) {
		return &InputSizeMismatchError{Expected: len(c.Inputs), Actual: len(inputs)}
	}
	if len(outputs) != len(c.Outputs) {
		panic("circuit: output slice length does not match primary outputs")
	}

	s.Reset()
	for i, in := range c.Inputs {
		s.set(in.Index, inputs[i])
	}

	for _, gate := range c.Levelized {
		s.evaluateGate(gate)
	}

	for i, out := range c.Outputs {
		outputs[i] = s.get(out.Index)
	}
	return nil
}

func (s *State) evaluateGate(g *Gate) {
	in := s.scratch[:len(g.Inputs)]
	for i, conn := range g.Inputs {
		in[i] = s.get(conn.Index)
	}
	s.set(g.Output.Index, g.Type.Eval(in))
}
