package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
	"github.com/fyerfyer/fault-sim/pkg/config"
	"github.com/fyerfyer/fault-sim/pkg/fault"
	"github.com/fyerfyer/fault-sim/pkg/server"
	"github.com/fyerfyer/fault-sim/pkg/simulation"
	"github.com/fyerfyer/fault-sim/pkg/utils"
)

// app carries state shared by all subcommands
type app struct {
	configPath string
	logLevel   string
	logFile    string

	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "faultsim",
		Short:         "Combinational stuck-at fault simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (error, warning, info, debug, trace)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Log file (default: stderr)")

	root.AddCommand(
		a.simulateCommand(),
		a.evaluateCommand(),
		a.faultsCommand(),
		a.infoCommand(),
		a.vectorsCommand(),
		a.serveCommand(),
	)
	return root
}

// setup loads configuration and configures the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFile != "" {
		cfg.Log.File = a.logFile
	}
	a.cfg = cfg

	level, err := utils.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Log.File != "" {
		a.logger, a.logCloser, err = utils.NewFileLogger(level, cfg.Log.File)
		if err != nil {
			return err
		}
	} else {
		a.logger = utils.NewLogger(level, cmd.ErrOrStderr())
	}
	return nil
}

func (a *app) parseCircuit(path string) (*circuit.Circuit, error) {
	a.logger.Info("Parsing circuit", "file", path)
	c, err := utils.ParseNetlistFile(path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Circuit parsed",
		"circuit", c.Name,
		"inputs", len(c.Inputs),
		"outputs", len(c.Outputs),
		"gates", len(c.Gates),
		"levels", c.MaxLevel)
	return c, nil
}

func (a *app) simulateCommand() *cobra.Command {
	var (
		vectorFile string
		mode       string
		workers    int
		faultList  string
		verify     bool
		jsonOut    bool
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "simulate <netlist>",
		Short: "Run fault simulation and report coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.parseCircuit(args[0])
			if err != nil {
				return err
			}

			vectors, err := a.loadVectors(c, vectorFile)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("mode") {
				a.cfg.Simulation.Mode = mode
			}
			if cmd.Flags().Changed("workers") {
				a.cfg.Simulation.Workers = workers
			}
			if cmd.Flags().Changed("verify") {
				a.cfg.Simulation.Verify = verify
			}
			runMode, err := simulation.ParseMode(a.cfg.Simulation.Mode)
			if err != nil {
				return err
			}

			opts := []simulation.Option{
				simulation.WithWorkers(a.cfg.Simulation.Workers),
				simulation.WithLogger(a.logger),
			}
			if faultList != "" {
				faults, err := fault.ParseList(faultList)
				if err != nil {
					return err
				}
				opts = append(opts, simulation.WithFaults(faults))
			}
			sim, err := simulation.New(c, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := a.runContext(cmd.Context())
			defer cancel()

			a.logger.Info("Starting fault simulation",
				"mode", runMode,
				"faults", len(sim.Faults()),
				"vectors", len(vectors),
				"workers", sim.Workers())
			report, err := sim.Run(ctx, runMode, vectors)
			if err != nil {
				return err
			}

			if a.cfg.Simulation.Verify {
				other := simulation.Serial
				if runMode == simulation.Serial {
					other = simulation.Parallel
				}
				check, err := sim.Run(ctx, other, vectors)
				if err != nil {
					return err
				}
				if err := simulation.Equivalent(report, check); err != nil {
					return errors.Wrap(err, "serial and parallel reports differ")
				}
				a.logger.Info("Serial and parallel reports match")
			}

			out := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return errors.Wrap(err, "failed to create output file")
				}
				defer f.Close()
				out = f
			}
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(out, report)
		},
	}

	cmd.Flags().StringVar(&vectorFile, "vectors", "", "Test vector file (default: generated per config)")
	cmd.Flags().StringVar(&mode, "mode", "parallel", "Simulation mode (serial or parallel)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	cmd.Flags().StringVar(&faultList, "faults", "", "Comma separated faults to simulate (default: all)")
	cmd.Flags().BoolVar(&verify, "verify", false, "Cross-check the report against the other mode")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file")
	return cmd
}

func (a *app) evaluateCommand() *cobra.Command {
	var faultList string

	cmd := &cobra.Command{
		Use:   "evaluate <netlist> <vector>",
		Short: "Evaluate the circuit for one input vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.parseCircuit(args[0])
			if err != nil {
				return err
			}
			inputs, err := utils.ParseVector(args[1])
			if err != nil {
				return err
			}

			faults, err := fault.ParseList(faultList)
			if err != nil {
				return err
			}
			for _, f := range faults {
				if err := c.InjectFault(f.ConnectionID, f.Value); err != nil {
					return err
				}
				a.logger.Debug("Injected fault", "fault", f.ID())
			}

			outputs, err := c.Evaluate(inputs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), utils.FormatVector(outputs))
			return nil
		},
	}

	cmd.Flags().StringVar(&faultList, "faults", "", "Faults to inject, e.g. 4:SA1,7:SA0")
	return cmd
}

func (a *app) faultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "faults <netlist>",
		Short: "List the stuck-at fault universe of a circuit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.parseCircuit(args[0])
			if err != nil {
				return err
			}
			for _, f := range fault.GenerateFaultList(c) {
				fmt.Fprintln(cmd.OutOrStdout(), f.ID())
			}
			return nil
		},
	}
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <netlist>",
		Short: "Print circuit structure and levelization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.parseCircuit(args[0])
			if err != nil {
				return err
			}
			topo := circuit.NewTopology(c)
			topo.Analyze()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Circuit: %s\n", c.Name)
			fmt.Fprintf(out, "Primary inputs: %d\n", len(c.Inputs))
			fmt.Fprintf(out, "Primary outputs: %d\n", len(c.Outputs))
			fmt.Fprintf(out, "Gates: %d\n", len(c.Gates))
			fmt.Fprintf(out, "Connections: %d\n", len(c.Connections))
			fmt.Fprintf(out, "Levels: %d\n", topo.MaxLevel)
			for level := 1; level <= topo.MaxLevel; level++ {
				fmt.Fprintf(out, "  level %d: %d gates\n", level, topo.LevelWidths[level])
			}
			fmt.Fprintf(out, "Fanout points: %d\n", len(topo.FanoutPoints))
			fmt.Fprintf(out, "Pass-through outputs: %d\n", len(topo.Passthrough))
			fmt.Fprintf(out, "Faults: %d\n", 2*len(c.Connections))
			return nil
		},
	}
}

func (a *app) vectorsCommand() *cobra.Command {
	var (
		source     string
		count      int
		seed       int64
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "vectors <netlist>",
		Short: "Generate a test vector file for a circuit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.parseCircuit(args[0])
			if err != nil {
				return err
			}
			v := a.cfg.Vectors
			if cmd.Flags().Changed("source") {
				v.Source = source
			}
			if cmd.Flags().Changed("count") {
				v.Count = count
			}
			if cmd.Flags().Changed("seed") {
				v.Seed = seed
			}
			vectors, err := utils.GenerateVectors(v.Source, len(c.Inputs), v.Count, v.Seed)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return errors.Wrap(err, "failed to create output file")
				}
				defer f.Close()
				out = f
			}
			a.logger.Info("Writing test vectors", "count", len(vectors), "source", v.Source)
			return utils.WriteTestVectors(out, c, vectors)
		},
	}

	cmd.Flags().StringVar(&source, "source", "exhaustive", "Vector source (exhaustive or random)")
	cmd.Flags().IntVar(&count, "count", 256, "Number of random vectors")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func (a *app) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fault simulator over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			gin.SetMode(gin.ReleaseMode)

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           server.New(a.cfg, a.logger).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Server listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				a.logger.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// loadVectors reads a vector file or generates vectors per configuration
func (a *app) loadVectors(c *circuit.Circuit, path string) ([][]bool, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read vector file")
		}
		return utils.ParseVectors(string(data), len(c.Inputs))
	}
	v := a.cfg.Vectors
	return utils.GenerateVectors(v.Source, len(c.Inputs), v.Count, v.Seed)
}

func (a *app) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if a.cfg.Simulation.Timeout > 0 {
		return context.WithTimeout(parent, a.cfg.Simulation.Timeout)
	}
	return context.WithCancel(parent)
}

// printReport writes a human readable coverage summary
func printReport(w io.Writer, r *simulation.Report) error {
	fmt.Fprintf(w, "Circuit: %s\n", r.Circuit)
	fmt.Fprintf(w, "Mode: %s (%d workers)\n", r.Mode, r.Stats.Workers)
	fmt.Fprintf(w, "Vectors: %d\n", r.Vectors)
	fmt.Fprintf(w, "Faults: %d\n", r.Total)
	fmt.Fprintf(w, "Detected: %d\n", r.Detected)
	fmt.Fprintf(w, "Undetectable: %d\n", r.Undetectable)
	fmt.Fprintf(w, "Fault coverage: %.2f%%\n", r.Coverage*100)
	fmt.Fprintf(w, "Evaluations: %d\n", r.Stats.Evaluations)
	fmt.Fprintf(w, "Time: %v\n", r.Stats.TotalTime)

	for _, id := range r.Order {
		res := r.Results[id]
		if res.Detected {
			fmt.Fprintf(w, "  %-10s detected by #%d %s -> %s\n", id, res.VectorIndex,
				utils.FormatVector(res.DetectingVector), utils.FormatVector(res.FaultyOutputs))
		} else {
			fmt.Fprintf(w, "  %-10s undetected\n", id)
		}
	}
	return nil
}
