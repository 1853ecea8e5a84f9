// Package simulation classifies single stuck-at faults of a circuit as
// detected or undetectable under a set of test vectors.
//
// Faults can be scheduled serially on a single private circuit.State or
// in parallel, one task per fault, each task evaluating on its own
// circuit.State. Neither schedule touches the circuit's default state. Both schedules produce the same report content: for each
// fault the first detecting vector in vector order, or none.
package simulation

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
	"github.com/fyerfyer/fault-sim/pkg/fault"
)

// cancelCheckInterval is how many vectors a fault scan evaluates between context checks
const cancelCheckInterval = 256

// Simulator runs fault simulation on one finalized circuit
type Simulator struct {
	circuit *circuit.Circuit
	faults  []fault.Fault
	workers int
	logger  *slog.Logger
}

// Option configures a Simulator
type Option func(*Simulator)

// WithWorkers sets the parallel pool size. Values <= 0 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Simulator) {
		s.workers = n
	}
}

// WithLogger sets the logger used for run start/finish messages
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFaults replaces the generated fault universe with an explicit list.
// Repeated faults are simulated and reported once.
func WithFaults(faults []fault.Fault) Option {
	return func(s *Simulator) {
		s.faults = faults
	}
}

// New creates a simulator for c. Unless WithFaults is given, the fault
// list is the full universe from fault.GenerateFaultList.
func New(c *circuit.Circuit, opts ...Option) (*Simulator, error) {
	if c == nil || !c.IsFinalized() {
		return nil, errors.New("simulation: circuit is nil or not finalized")
	}

	s := &Simulator{
		circuit: c,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.faults == nil {
		s.faults = fault.GenerateFaultList(c)
	} else {
		if err := fault.Validate(c, s.faults); err != nil {
			return nil, err
		}
		s.faults = fault.Dedupe(s.faults)
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	return s, nil
}

// Faults returns the fault list in simulation order
func (s *Simulator) Faults() []fault.Fault {
	return s.faults
}

// Workers returns the parallel pool size
func (s *Simulator) Workers() int {
	return s.workers
}

// Run dispatches to RunSerial or RunParallel
func (s *Simulator) Run(ctx context.Context, mode Mode, vectors [][]bool) (*Report, error) {
	switch mode {
	case Serial:
		return s.RunSerial(ctx, vectors)
	case Parallel:
		return s.RunParallel(ctx, vectors)
	default:
		_, err := ParseMode(string(mode))
		return nil, err
	}
}

// RunSerial simulates every fault in order on one private circuit.State.
// The circuit's default state, and any override injected into it, is
// left untouched whether the run succeeds or fails.
func (s *Simulator) RunSerial(ctx context.Context, vectors [][]bool) (*Report, error) {
	ctx, span, start := s.begin(ctx, Serial, vectors)
	defer span.End()

	golden, err := s.goldenOutputs(vectors)
	if err != nil {
		return nil, s.fail(span, Serial, err)
	}

	state := s.circuit.NewState()
	out := make([]bool, len(s.circuit.Outputs))
	results := make([]Result, len(s.faults))
	evaluations := int64(len(vectors))

	for i, f := range s.faults {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(span, Serial, err)
		}
		res, n, err := s.scanFault(ctx, state, f, vectors, golden, out)
		evaluations += n
		if err != nil {
			return nil, s.fail(span, Serial, err)
		}
		results[i] = res
	}

	return s.finish(span, Serial, vectors, results, evaluations, 1, start), nil
}

// RunParallel simulates faults concurrently on a pool of Workers() goroutines.
// Every task evaluates on its own circuit.State, so the circuit's default
// state is never touched. Results are merged by fault index after the pool
// drains, which makes the report independent of completion order.
func (s *Simulator) RunParallel(ctx context.Context, vectors [][]bool) (*Report, error) {
	ctx, span, start := s.begin(ctx, Parallel, vectors)
	defer span.End()

	golden, err := s.goldenOutputs(vectors)
	if err != nil {
		return nil, s.fail(span, Parallel, err)
	}

	results := make([]Result, len(s.faults))
	counts := make([]int64, len(s.faults))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, f := range s.faults {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state := s.circuit.NewState()
			out := make([]bool, len(s.circuit.Outputs))
			res, n, err := s.scanFault(gctx, state, f, vectors, golden, out)
			results[i] = res
			counts[i] = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, s.fail(span, Parallel, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(span, Parallel, err)
	}

	evaluations := int64(len(vectors))
	for _, n := range counts {
		evaluations += n
	}
	return s.finish(span, Parallel, vectors, results, evaluations, s.workers, start), nil
}

// scanFault injects f into state and evaluates vectors in order until one
// produces outputs different from its golden outputs. It returns the
// result and the number of evaluations performed.
func (s *Simulator) scanFault(ctx context.Context, state *circuit.State, f fault.Fault,
	vectors, golden [][]bool, out []bool) (Result, int64, error) {
	conn := s.circuit.GetConnection(f.ConnectionID)
	if conn == nil {
		return Result{}, 0, &circuit.UnknownFaultTargetError{ConnectionID: f.ConnectionID, Fault: f.ID()}
	}

	state.SetStuck(conn, f.Value)
	defer state.ClearStuck(conn)

	var n int64
	for vi, vec := range vectors {
		if vi > 0 && vi%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, n, err
			}
		}
		if err := state.EvaluateInto(vec, out); err != nil {
			return Result{}, n, err
		}
		n++
		if !equalBits(out, golden[vi]) {
			return Result{
				Detected:        true,
				VectorIndex:     vi,
				DetectingVector: cloneBits(vec),
				FaultyOutputs:   cloneBits(out),
			}, n, nil
		}
	}
	return Result{VectorIndex: -1}, n, nil
}

// goldenOutputs evaluates every vector once on a fresh, override-free state
func (s *Simulator) goldenOutputs(vectors [][]bool) ([][]bool, error) {
	state := s.circuit.NewState()
	golden := make([][]bool, len(vectors))
	for i, vec := range vectors {
		out, err := state.Evaluate(vec)
		if err != nil {
			return nil, err
		}
		golden[i] = out
	}
	return golden, nil
}

// GoldenOutputs returns the fault-free outputs of every vector
func (s *Simulator) GoldenOutputs(vectors [][]bool) ([][]bool, error) {
	return s.goldenOutputs(vectors)
}

// FaultResponses evaluates every fault under a single vector and returns
// the fault-free outputs together with the faulty outputs of each fault,
// keyed by fault ID.
func (s *Simulator) FaultResponses(vector []bool) ([]bool, map[string][]bool, error) {
	state := s.circuit.NewState()
	golden, err := state.Evaluate(vector)
	if err != nil {
		return nil, nil, err
	}

	responses := make(map[string][]bool, len(s.faults))
	for _, f := range s.faults {
		conn := s.circuit.GetConnection(f.ConnectionID)
		if conn == nil {
			return nil, nil, &circuit.UnknownFaultTargetError{ConnectionID: f.ConnectionID, Fault: f.ID()}
		}
		state.SetStuck(conn, f.Value)
		out, err := state.Evaluate(vector)
		state.ClearStuck(conn)
		if err != nil {
			return nil, nil, err
		}
		responses[f.ID()] = out
	}
	return golden, responses, nil
}

func (s *Simulator) begin(ctx context.Context, mode Mode, vectors [][]bool) (context.Context, trace.Span, time.Time) {
	ctx, span := tracer.Start(ctx, "simulation.Run",
		trace.WithAttributes(
			attribute.String("simulation.mode", string(mode)),
			attribute.String("circuit.name", s.circuit.Name),
			attribute.Int("simulation.faults", len(s.faults)),
			attribute.Int("simulation.vectors", len(vectors)),
		),
	)
	s.logger.Debug("fault simulation started",
		slog.String("circuit", s.circuit.Name),
		slog.String("mode", string(mode)),
		slog.Int("faults", len(s.faults)),
		slog.Int("vectors", len(vectors)),
	)
	return ctx, span, time.Now()
}

func (s *Simulator) finish(span trace.Span, mode Mode, vectors [][]bool, results []Result,
	evaluations int64, workers int, start time.Time) *Report {
	report := newReport(s.circuit.Name, mode, len(vectors), s.faults, results)
	report.RunID = uuid.NewString()
	report.Stats = Stats{
		Evaluations: evaluations,
		Workers:     workers,
		TotalTime:   time.Since(start),
	}
	recordRun(report)

	span.SetAttributes(
		attribute.Int("simulation.detected", report.Detected),
		attribute.Float64("simulation.coverage", report.Coverage),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Debug("fault simulation finished",
		slog.String("run_id", report.RunID),
		slog.String("mode", string(mode)),
		slog.Int("detected", report.Detected),
		slog.Int("undetectable", report.Undetectable),
		slog.Float64("coverage", report.Coverage),
		slog.Duration("elapsed", report.Stats.TotalTime),
	)
	return report
}

func (s *Simulator) fail(span trace.Span, mode Mode, err error) error {
	errType := "internal"
	var sizeErr *circuit.InputSizeMismatchError
	var targetErr *circuit.UnknownFaultTargetError
	switch {
	case errors.Is(err, context.Canceled):
		errType = "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		errType = "deadline"
	case errors.As(err, &sizeErr):
		errType = "input_size"
	case errors.As(err, &targetErr):
		errType = "fault_target"
	}
	recordError(mode, errType)

	span.RecordError(err)
	span.SetStatus(codes.Error, errType)
	s.logger.Debug("fault simulation failed", slog.String("mode", string(mode)), slog.Any("error", err))
	return err
}
