// Command faultsim simulates combinational netlists and grades single
// stuck-at faults against a set of test vectors.
//
// Usage:
//
//	faultsim simulate c17.bench
//	faultsim simulate c17.bench --vectors c17.vec --mode serial
//	faultsim evaluate c17.bench 10110 --faults 16:SA1
//	faultsim faults c17.bench
//	faultsim info c17.bench
//	faultsim vectors c17.bench --source random --count 64 -o c17.vec
//	faultsim serve --addr :8080
package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	exitSuccess = 0
	exitError   = 1
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
