package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
	"github.com/fyerfyer/fault-sim/pkg/fault"
	"github.com/fyerfyer/fault-sim/pkg/utils"
)

const c17Netlist = `# c17
INPUT(1)
INPUT(2)
INPUT(3)
INPUT(6)
INPUT(7)
OUTPUT(22)
OUTPUT(23)
10 = NAND(1, 3)
11 = NAND(3, 6)
16 = NAND(2, 11)
19 = NAND(11, 7)
22 = NAND(10, 16)
23 = NAND(16, 19)
`

func parse(t *testing.T, name, text string) *circuit.Circuit {
	t.Helper()
	c, err := utils.ParseNetlist(name, text)
	require.NoError(t, err)
	return c
}

func exhaustive(t *testing.T, c *circuit.Circuit) [][]bool {
	t.Helper()
	vectors, err := utils.ExhaustiveVectors(len(c.Inputs))
	require.NoError(t, err)
	return vectors
}

// TestC17Coverage tests full coverage of c17 under exhaustive vectors
func TestC17Coverage(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c, WithWorkers(4))
	require.NoError(t, err)

	report, err := sim.RunSerial(context.Background(), exhaustive(t, c))
	require.NoError(t, err)

	assert.Equal(t, "c17", report.Circuit)
	assert.Equal(t, Serial, report.Mode)
	assert.Equal(t, 32, report.Vectors)
	assert.Equal(t, 22, report.Total)
	assert.Equal(t, 22, report.Detected)
	assert.Equal(t, 0, report.Undetectable)
	assert.Equal(t, 1.0, report.Coverage)
	assert.NotEmpty(t, report.RunID)

	r := report.Results["16:SA1"]
	assert.True(t, r.Detected)
	assert.Equal(t, 8, r.VectorIndex)
	assert.Equal(t, "01000", utils.FormatVector(r.DetectingVector))
	assert.Equal(t, []bool{false, false}, r.FaultyOutputs)

	r = report.Results["1:SA0"]
	assert.Equal(t, 20, r.VectorIndex)
	assert.Equal(t, "10100", utils.FormatVector(r.DetectingVector))

	r = report.Results["2:SA1"]
	assert.Equal(t, 0, r.VectorIndex)
	assert.Equal(t, []bool{true, true}, r.FaultyOutputs)

	// Golden evaluations plus one evaluation per vector scanned up to detection
	assert.Equal(t, int64(155), report.Stats.Evaluations)
	assert.Equal(t, 1, report.Stats.Workers)
}

// TestSerialParallelEquivalenceC17 tests that both schedules classify faults identically
func TestSerialParallelEquivalenceC17(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	vectors := utils.RandomVectors(len(c.Inputs), 6, 3)

	for _, workers := range []int{1, 2, 7, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			sim, err := New(c, WithWorkers(workers))
			require.NoError(t, err)

			serial, err := sim.RunSerial(context.Background(), vectors)
			require.NoError(t, err)
			parallel, err := sim.RunParallel(context.Background(), vectors)
			require.NoError(t, err)

			assert.NoError(t, Equivalent(serial, parallel))
			assert.Equal(t, serial.DetectedFaults(), parallel.DetectedFaults())
			assert.Equal(t, serial.Order, parallel.Order)
			assert.Equal(t, serial.Stats.Evaluations, parallel.Stats.Evaluations)
			assert.Equal(t, workers, parallel.Stats.Workers)
		})
	}
}

// randomNetlist builds a random levelizable netlist. Gates only read
// primary inputs or earlier gates, and are declared in shuffled order.
func randomNetlist(rng *rand.Rand, inputs, gates int) string {
	types := []string{"AND", "OR", "NAND", "NOR", "XOR", "NOT", "BUFF"}
	lines := make([]string, 0, gates)
	for g := 0; g < gates; g++ {
		id := inputs + g + 1
		typ := types[rng.Intn(len(types))]
		fanin := 1
		if typ != "NOT" && typ != "BUFF" {
			fanin = 2 + rng.Intn(3)
		}
		ins := make([]string, fanin)
		for i := range ins {
			ins[i] = fmt.Sprint(1 + rng.Intn(id-1))
		}
		lines = append(lines, fmt.Sprintf("%d = %s(%s)", id, typ, strings.Join(ins, ", ")))
	}
	rng.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })

	var b strings.Builder
	for i := 1; i <= inputs; i++ {
		fmt.Fprintf(&b, "INPUT(%d)\n", i)
	}
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "OUTPUT(%d)\n", inputs+gates-i)
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return b.String()
}

func TestSerialParallelEquivalenceRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 10; i++ {
		text := randomNetlist(rng, 4+rng.Intn(5), 10+rng.Intn(30))
		c := parse(t, fmt.Sprintf("random%d", i), text)
		vectors := utils.RandomVectors(len(c.Inputs), 20, int64(i))

		sim, err := New(c, WithWorkers(1+rng.Intn(8)))
		require.NoError(t, err)

		serial, err := sim.Run(context.Background(), Serial, vectors)
		require.NoError(t, err)
		parallel, err := sim.Run(context.Background(), Parallel, vectors)
		require.NoError(t, err, text)

		require.NoError(t, Equivalent(serial, parallel), text)
		for id, rs := range serial.Results {
			rp := parallel.Results[id]
			assert.Equal(t, rs.DetectingVector, rp.DetectingVector, id)
		}
	}
}

// TestDetectionAgainstDirectEvaluation cross-checks each result with a
// fault injected directly into the circuit's default state
func TestDetectionAgainstDirectEvaluation(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	vectors := utils.RandomVectors(len(c.Inputs), 5, 11)

	sim, err := New(c)
	require.NoError(t, err)
	report, err := sim.RunParallel(context.Background(), vectors)
	require.NoError(t, err)

	golden, err := sim.GoldenOutputs(vectors)
	require.NoError(t, err)

	for _, f := range sim.Faults() {
		require.NoError(t, c.InjectFault(f.ConnectionID, f.Value))
		first := -1
		for vi, vec := range vectors {
			out, err := c.Evaluate(vec)
			require.NoError(t, err)
			if !assert.ObjectsAreEqual(out, golden[vi]) {
				first = vi
				break
			}
		}
		c.ClearFaults()

		assert.Equal(t, first, report.Results[f.ID()].VectorIndex, f.ID())
		assert.Equal(t, first >= 0, report.Results[f.ID()].Detected, f.ID())
	}
}

func TestUndetectableFault(t *testing.T) {
	// 4 = OR(1, 3) masks 3 whenever 1 is high
	c := parse(t, "masked", "INPUT(1)\nINPUT(2)\nOUTPUT(4)\n3 = AND(1, 2)\n4 = OR(1, 3)\n")
	vectors := [][]bool{{true, false}, {true, true}}

	sim, err := New(c)
	require.NoError(t, err)
	report, err := sim.RunSerial(context.Background(), vectors)
	require.NoError(t, err)

	r := report.Results["3:SA1"]
	assert.False(t, r.Detected)
	assert.Equal(t, -1, r.VectorIndex)
	assert.Nil(t, r.DetectingVector)

	assert.Contains(t, report.UndetectableFaults(), "3:SA1")
	assert.Contains(t, report.DetectedFaults(), "1:SA0")
	assert.Equal(t, report.Total, len(report.DetectedFaults())+len(report.UndetectableFaults()))
	assert.InDelta(t, float64(report.Detected)/float64(report.Total), report.Coverage, 1e-12)
}

func TestEmptyVectorSet(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	for _, mode := range []Mode{Serial, Parallel} {
		report, err := sim.Run(context.Background(), mode, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Detected)
		assert.Equal(t, 22, report.Undetectable)
		assert.Equal(t, 0.0, report.Coverage)
	}
}

func TestRunInputSizeMismatch(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	vectors := [][]bool{{true, true, true, true, true}, {true, false}}
	for _, mode := range []Mode{Serial, Parallel} {
		_, err := sim.Run(context.Background(), mode, vectors)
		var size *circuit.InputSizeMismatchError
		assert.True(t, errors.As(err, &size), "mode %s: %v", mode, err)
	}
}

func TestRunCanceled(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := testutil.ToFloat64(runErrors.WithLabelValues(string(Serial), "canceled"))
	for _, mode := range []Mode{Serial, Parallel} {
		report, err := sim.Run(ctx, mode, exhaustive(t, c))
		assert.Nil(t, report)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, before+1, testutil.ToFloat64(runErrors.WithLabelValues(string(Serial), "canceled")))

	// Serial cancellation leaves no override behind
	assert.False(t, c.State().HasStuck())
}

func TestRunUnknownMode(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	_, err = sim.Run(context.Background(), Mode("vector"), nil)
	assert.Error(t, err)
}

func TestCustomFaultList(t *testing.T) {
	c := parse(t, "c17", c17Netlist)

	faults := []fault.Fault{fault.New(16, true), fault.New(22, false)}
	sim, err := New(c, WithFaults(faults))
	require.NoError(t, err)
	assert.Equal(t, faults, sim.Faults())

	report, err := sim.RunParallel(context.Background(), exhaustive(t, c))
	require.NoError(t, err)
	assert.Equal(t, []string{"16:SA1", "22:SA0"}, report.Order)
	assert.Equal(t, 2, report.Detected)

	_, err = New(c, WithFaults([]fault.Fault{fault.New(99, true)}))
	var target *circuit.UnknownFaultTargetError
	assert.True(t, errors.As(err, &target))
}

func TestNewRejectsUnfinalizedCircuit(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(circuit.NewCircuit("open"))
	assert.Error(t, err)
}

func TestDefaultWorkers(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c, WithWorkers(0))
	require.NoError(t, err)
	assert.Positive(t, sim.Workers())
}

// TestParallelLeavesDefaultStateUntouched tests that parallel tasks use their own states
func TestParallelLeavesDefaultStateUntouched(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	require.NoError(t, c.InjectFault(10, circuit.StuckAt1))

	sim, err := New(c)
	require.NoError(t, err)
	report, err := sim.RunParallel(context.Background(), exhaustive(t, c))
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.Coverage)

	assert.Equal(t, circuit.StuckAt1, c.State().Stuck(c.GetConnection(10)))
}

func TestFaultResponses(t *testing.T) {
	c := parse(t, "andor", "INPUT(1)\nINPUT(2)\nINPUT(3)\nOUTPUT(4)\nOUTPUT(5)\n4 = AND(1, 2)\n5 = OR(2, 3)\n")
	sim, err := New(c)
	require.NoError(t, err)

	golden, responses, err := sim.FaultResponses([]bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, golden)
	assert.Len(t, responses, 10)
	assert.Equal(t, []bool{true, true}, responses["4:SA1"])
	assert.Equal(t, []bool{false, true}, responses["4:SA0"])
	assert.Equal(t, []bool{true, true}, responses["2:SA1"])

	_, _, err = sim.FaultResponses([]bool{true})
	assert.Error(t, err)
}

func TestMetricsRecorded(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	detected := faultsSimulated.WithLabelValues(string(Parallel), "detected")
	evals := evaluationsTotal.WithLabelValues(string(Parallel))
	beforeDetected := testutil.ToFloat64(detected)
	beforeEvals := testutil.ToFloat64(evals)

	report, err := sim.RunParallel(context.Background(), exhaustive(t, c))
	require.NoError(t, err)

	assert.Equal(t, beforeDetected+22, testutil.ToFloat64(detected))
	assert.Equal(t, beforeEvals+float64(report.Stats.Evaluations), testutil.ToFloat64(evals))
}

func TestEquivalentDetectsDifference(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	sim, err := New(c)
	require.NoError(t, err)

	full, err := sim.RunSerial(context.Background(), exhaustive(t, c))
	require.NoError(t, err)
	partial, err := sim.RunSerial(context.Background(), exhaustive(t, c)[:3])
	require.NoError(t, err)

	assert.Error(t, Equivalent(full, partial))
	assert.NoError(t, Equivalent(full, full))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("serial")
	require.NoError(t, err)
	assert.Equal(t, Serial, m)

	m, err = ParseMode("parallel")
	require.NoError(t, err)
	assert.Equal(t, Parallel, m)

	_, err = ParseMode("PARALLEL")
	assert.Error(t, err)
}

// TestRunKeepsInjectedFaults tests that runs leave overrides on the default state as they were
func TestRunKeepsInjectedFaults(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	require.NoError(t, c.InjectFault(22, circuit.StuckAt1))
	sim, err := New(c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, mode := range []Mode{Serial, Parallel} {
		_, err := sim.Run(ctx, mode, exhaustive(t, c))
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, circuit.StuckAt1, c.State().Stuck(c.GetConnection(22)), "mode %s", mode)
	}

	_, err = sim.RunSerial(context.Background(), [][]bool{{true, true}})
	require.Error(t, err)
	assert.Equal(t, circuit.StuckAt1, c.State().Stuck(c.GetConnection(22)))

	report, err := sim.RunSerial(context.Background(), exhaustive(t, c))
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.Coverage)
	assert.Equal(t, circuit.StuckAt1, c.State().Stuck(c.GetConnection(22)))

	out, err := c.Evaluate([]bool{false, false, false, false, false})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, out)
}

// TestPassthroughFaults tests faults on a connection that is both a primary input and output
func TestPassthroughFaults(t *testing.T) {
	c := parse(t, "pass", "INPUT(1)\nINPUT(2)\nOUTPUT(1)\nOUTPUT(3)\n3 = NOT(2)\n")
	vectors := exhaustive(t, c) // 00, 01, 10, 11

	sim, err := New(c)
	require.NoError(t, err)

	for _, mode := range []Mode{Serial, Parallel} {
		report, err := sim.Run(context.Background(), mode, vectors)
		require.NoError(t, err)

		sa0 := report.Results["1:SA0"]
		assert.True(t, sa0.Detected, "mode %s", mode)
		assert.Equal(t, 2, sa0.VectorIndex)
		assert.Equal(t, "10", utils.FormatVector(sa0.DetectingVector))
		assert.Equal(t, []bool{false, true}, sa0.FaultyOutputs)

		sa1 := report.Results["1:SA1"]
		assert.True(t, sa1.Detected, "mode %s", mode)
		assert.Equal(t, 0, sa1.VectorIndex)
		assert.Equal(t, "00", utils.FormatVector(sa1.DetectingVector))
		assert.Equal(t, []bool{true, true}, sa1.FaultyOutputs)

		assert.Equal(t, 1.0, report.Coverage)
	}
}

// TestDuplicateFaultsReportedOnce tests that a repeated fault does not skew the totals
func TestDuplicateFaultsReportedOnce(t *testing.T) {
	c := parse(t, "c17", c17Netlist)
	faults := []fault.Fault{fault.New(16, true), fault.New(16, true), fault.New(22, false)}

	sim, err := New(c, WithFaults(faults))
	require.NoError(t, err)
	assert.Len(t, sim.Faults(), 2)

	for _, mode := range []Mode{Serial, Parallel} {
		report, err := sim.Run(context.Background(), mode, exhaustive(t, c))
		require.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Len(t, report.Results, report.Total)
		assert.Equal(t, []string{"16:SA1", "22:SA0"}, report.Order)
		assert.Equal(t, 2, report.Detected)
		assert.Equal(t, 1.0, report.Coverage)
	}
}
