package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/fault-sim/pkg/simulation"
)

var c17Path = filepath.Join("..", "pkg", "utils", "testdata", "c17.bench")

// run executes the root command with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestSimulateCommand(t *testing.T) {
	out, err := run(t, "simulate", c17Path, "--mode", "serial", "--verify")
	require.NoError(t, err)

	assert.Contains(t, out, "Circuit: c17")
	assert.Contains(t, out, "Faults: 22")
	assert.Contains(t, out, "Fault coverage: 100.00%")
	assert.Contains(t, out, "16:SA1")
}

func TestSimulateCommandJSON(t *testing.T) {
	vecFile := filepath.Join(t.TempDir(), "c17.vec")
	require.NoError(t, os.WriteFile(vecFile, []byte("00000\n01000\n"), 0644))

	out, err := run(t, "simulate", c17Path, "--vectors", vecFile, "--json", "--workers", "2")
	require.NoError(t, err)

	var report simulation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, simulation.Parallel, report.Mode)
	assert.Equal(t, 2, report.Vectors)
	assert.Equal(t, 1, report.Results["16:SA1"].VectorIndex)
	assert.Equal(t, 2, report.Stats.Workers)
}

func TestSimulateCommandFaultList(t *testing.T) {
	out, err := run(t, "simulate", c17Path, "--faults", "16:SA1,22:SA0")
	require.NoError(t, err)
	assert.Contains(t, out, "Faults: 2")

	_, err = run(t, "simulate", c17Path, "--faults", "99:SA1")
	assert.Error(t, err)
}

func TestEvaluateCommand(t *testing.T) {
	out, err := run(t, "evaluate", c17Path, "00000")
	require.NoError(t, err)
	assert.Equal(t, "00\n", out)

	out, err = run(t, "evaluate", c17Path, "00000", "--faults", "2:SA1")
	require.NoError(t, err)
	assert.Equal(t, "11\n", out)

	_, err = run(t, "evaluate", c17Path, "000")
	assert.Error(t, err)
}

func TestFaultsCommand(t *testing.T) {
	out, err := run(t, "faults", c17Path)
	require.NoError(t, err)

	lines := strings.Fields(out)
	require.Len(t, lines, 22)
	assert.Equal(t, "1:SA0", lines[0])
	assert.Equal(t, "23:SA1", lines[21])
}

func TestInfoCommand(t *testing.T) {
	out, err := run(t, "info", c17Path)
	require.NoError(t, err)
	assert.Contains(t, out, "Gates: 6")
	assert.Contains(t, out, "Levels: 3")
	assert.Contains(t, out, "  level 1: 2 gates")
	assert.Contains(t, out, "Fanout points: 3")
}

func TestVectorsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c17.vec")
	_, err := run(t, "vectors", c17Path, "--source", "random", "--count", "5", "--seed", "3", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Test vectors for c17\n# Inputs: 1 2 3 6 7\n"))

	out, err := run(t, "simulate", c17Path, "--vectors", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Vectors: 5")
}

func TestBadNetlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.bench")
	require.NoError(t, os.WriteFile(path, []byte("INPUT(1)\nOUTPUT(3)\n2 = AND(1, 3)\n3 = OR(1, 2)\n"), 0644))

	_, err := run(t, "info", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "combinational cycle")
}

func TestBadLogLevel(t *testing.T) {
	_, err := run(t, "faults", c17Path, "--log-level", "loud")
	assert.Error(t, err)
}
