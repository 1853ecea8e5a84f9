package circuit

import (
	"sort"
)

// levelize assigns a level to every gate with Kahn's algorithm and fills
// Levelized. Primary inputs are level 0; a gate sits one level above the
// highest gate driving any of its inputs.
func (c *Circuit) levelize() error {
	// Number of distinct driving gates still unresolved, per gate
	pending := make(map[*Gate]int, len(c.declared))
	for _, gate := range c.declared {
		gate.Level = 0
		seen := make(map[*Gate]bool)
		for _, in := range gate.Inputs {
			if in.Driver != nil && !seen[in.Driver] {
				seen[in.Driver] = true
				pending[gate]++
			}
		}
	}

	queue := make([]*Gate, 0, len(c.declared))
	for _, gate := range c.declared {
		if pending[gate] == 0 {
			gate.Level = 1
			queue = append(queue, gate)
		}
	}

	levelized := make([]*Gate, 0, len(c.declared))
	for len(queue) > 0 {
		gate := queue[0]
		queue = queue[1:]
		levelized = append(levelized, gate)

		visited := make(map[*Gate]bool)
		for _, next := range gate.Output.Fanout {
			if visited[next] {
				continue
			}
			visited[next] = true
			if gate.Level+1 > next.Level {
				next.Level = gate.Level + 1
			}
			pending[next]--
			if pending[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(levelized) != len(c.declared) {
		cycle := make([]int, 0)
		for _, gate := range c.declared {
			if pending[gate] > 0 {
				cycle = append(cycle, gate.ID)
			}
		}
		return &CombinationalCycleError{Gates: cycle}
	}

	sort.SliceStable(levelized, func(i, j int) bool {
		if levelized[i].Level != levelized[j].Level {
			return levelized[i].Level < levelized[j].Level
		}
		return levelized[i].Order < levelized[j].Order
	})

	c.Levelized = levelized
	c.MaxLevel = 0
	if n := len(levelized); n > 0 {
		c.MaxLevel = levelized[n-1].Level
	}
	return nil
}

// Topology contains summary information about the circuit structure
type Topology struct {
	Circuit      *Circuit
	LevelWidths  []int         // Number of gates per level; index 0 is unused
	MaxLevel     int           // Depth of the circuit
	FanoutPoints []*Connection // Connections read by more than one gate
	Passthrough  []*Connection // Primary outputs that are also primary inputs
}

// NewTopology creates a new topology summary for a finalized circuit
func NewTopology(c *Circuit) *Topology {
	return &Topology{
		Circuit: c,
	}
}

// Analyze computes the topology summary
func (t *Topology) Analyze() {
	t.ComputeLevelWidths()
	t.IdentifyFanoutPoints()
	t.IdentifyPassthrough()
}

// ComputeLevelWidths counts the gates on every level
func (t *Topology) ComputeLevelWidths() {
	t.MaxLevel = t.Circuit.MaxLevel
	t.LevelWidths = make([]int, t.MaxLevel+1)
	for _, gate := range t.Circuit.Levelized {
		t.LevelWidths[gate.Level]++
	}
}

// IdentifyFanoutPoints identifies all fanout points in the circuit
func (t *Topology) IdentifyFanoutPoints() {
	t.FanoutPoints = make([]*Connection, 0)

	for _, conn := range t.Circuit.ConnectionList() {
		if len(conn.Fanout) > 1 {
			t.FanoutPoints = append(t.FanoutPoints, conn)
		}
	}
}

// IdentifyPassthrough finds primary outputs wired straight to a primary input
func (t *Topology) IdentifyPassthrough() {
	t.Passthrough = make([]*Connection, 0)

	for _, out := range t.Circuit.Outputs {
		if out.IsInput {
			t.Passthrough = append(t.Passthrough, out)
		}
	}
}
