// Package server exposes the fault simulator over HTTP.
//
// Netlists are uploaded as multipart files; results are returned as JSON.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
	"github.com/fyerfyer/fault-sim/pkg/config"
	"github.com/fyerfyer/fault-sim/pkg/fault"
	"github.com/fyerfyer/fault-sim/pkg/simulation"
	"github.com/fyerfyer/fault-sim/pkg/utils"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SimulateResponse is the body of a successful simulation request
type SimulateResponse struct {
	Report *simulation.Report `json:"report"`
}

// EvaluateResponse is the body of a successful evaluation request
type EvaluateResponse struct {
	Circuit string   `json:"circuit"`
	Inputs  string   `json:"inputs"`
	Outputs string   `json:"outputs"`
	Faults  []string `json:"faults,omitempty"`
}

// ResponsesResponse lists the faulty outputs of every fault under one vector
type ResponsesResponse struct {
	Circuit   string            `json:"circuit"`
	Inputs    string            `json:"inputs"`
	Golden    string            `json:"golden"`
	Responses map[string]string `json:"responses"`
}

// Server holds the HTTP handlers
type Server struct {
	cfg    config.Config
	logger *slog.Logger
}

// New creates a server. A nil logger selects slog.Default().
func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = s.cfg.Server.MaxUploadSize

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/circuits")
	api.POST("/simulate", s.HandleSimulate)
	api.POST("/evaluate", s.HandleEvaluate)
	api.POST("/responses", s.HandleResponses)
	return r
}

// HandleSimulate handles POST /api/circuits/simulate.
//
// Form fields: file (netlist, required), vectors (0/1 lines, optional),
// mode (serial|parallel, optional), faults (fault list, optional).
//
// Response:
//
//	200 OK: SimulateResponse
//	400 Bad Request: netlist, vector or fault list error
//	504 Gateway Timeout: simulation exceeded the configured timeout
func (s *Server) HandleSimulate(c *gin.Context) {
	logger := s.logger.With("handler", "HandleSimulate")

	ckt, ok := s.loadCircuit(c, logger)
	if !ok {
		return
	}

	mode := simulation.Mode(s.cfg.Simulation.Mode)
	if m := c.PostForm("mode"); m != "" {
		parsed, err := simulation.ParseMode(m)
		if err != nil {
			s.fail(c, logger, http.StatusBadRequest, "INVALID_MODE", err)
			return
		}
		mode = parsed
	}

	vectors, err := s.vectors(c.PostForm("vectors"), len(ckt.Inputs))
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "INVALID_VECTORS", err)
		return
	}

	opts := []simulation.Option{
		simulation.WithWorkers(s.cfg.Simulation.Workers),
		simulation.WithLogger(logger),
	}
	if list := c.PostForm("faults"); list != "" {
		faults, err := fault.ParseList(list)
		if err != nil {
			s.fail(c, logger, http.StatusBadRequest, "INVALID_FAULTS", err)
			return
		}
		opts = append(opts, simulation.WithFaults(faults))
	}

	sim, err := simulation.New(ckt, opts...)
	if err != nil {
		s.failErr(c, logger, err)
		return
	}

	ctx := c.Request.Context()
	if s.cfg.Simulation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Simulation.Timeout)
		defer cancel()
	}

	report, err := sim.Run(ctx, mode, vectors)
	if err != nil {
		s.failErr(c, logger, err)
		return
	}

	logger.Info("Simulation complete",
		"circuit", report.Circuit,
		"run_id", report.RunID,
		"mode", report.Mode,
		"coverage", report.Coverage)
	c.JSON(http.StatusOK, SimulateResponse{Report: report})
}

// HandleEvaluate handles POST /api/circuits/evaluate.
//
// Form fields: file (netlist, required), inputs (one 0/1 vector, required),
// faults (faults to inject, optional).
func (s *Server) HandleEvaluate(c *gin.Context) {
	logger := s.logger.With("handler", "HandleEvaluate")

	ckt, ok := s.loadCircuit(c, logger)
	if !ok {
		return
	}

	inputs, err := utils.ParseVector(c.PostForm("inputs"))
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "INVALID_VECTORS", err)
		return
	}

	faults, err := fault.ParseList(c.PostForm("faults"))
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "INVALID_FAULTS", err)
		return
	}
	ids := make([]string, 0, len(faults))
	for _, f := range faults {
		if err := ckt.InjectFault(f.ConnectionID, f.Value); err != nil {
			s.failErr(c, logger, err)
			return
		}
		ids = append(ids, f.ID())
	}

	outputs, err := ckt.Evaluate(inputs)
	if err != nil {
		s.failErr(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, EvaluateResponse{
		Circuit: ckt.Name,
		Inputs:  utils.FormatVector(inputs),
		Outputs: utils.FormatVector(outputs),
		Faults:  ids,
	})
}

// HandleResponses handles POST /api/circuits/responses.
//
// Form fields: file (netlist, required), inputs (one 0/1 vector, required).
func (s *Server) HandleResponses(c *gin.Context) {
	logger := s.logger.With("handler", "HandleResponses")

	ckt, ok := s.loadCircuit(c, logger)
	if !ok {
		return
	}

	inputs, err := utils.ParseVector(c.PostForm("inputs"))
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "INVALID_VECTORS", err)
		return
	}

	sim, err := simulation.New(ckt)
	if err != nil {
		s.failErr(c, logger, err)
		return
	}
	golden, responses, err := sim.FaultResponses(inputs)
	if err != nil {
		s.failErr(c, logger, err)
		return
	}

	body := ResponsesResponse{
		Circuit:   ckt.Name,
		Inputs:    utils.FormatVector(inputs),
		Golden:    utils.FormatVector(golden),
		Responses: make(map[string]string, len(responses)),
	}
	for id, out := range responses {
		body.Responses[id] = utils.FormatVector(out)
	}
	c.JSON(http.StatusOK, body)
}

// loadCircuit reads and parses the uploaded netlist
func (s *Server) loadCircuit(c *gin.Context, logger *slog.Logger) (*circuit.Circuit, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "MISSING_FILE", errors.New("netlist file is required"))
		return nil, false
	}
	if header.Size == 0 {
		s.fail(c, logger, http.StatusBadRequest, "EMPTY_FILE", errors.New("file is empty, please upload a valid netlist"))
		return nil, false
	}
	if header.Size > s.cfg.Server.MaxUploadSize {
		s.fail(c, logger, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", errors.New("netlist exceeds upload limit"))
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		s.fail(c, logger, http.StatusBadRequest, "INVALID_FILE", err)
		return nil, false
	}
	defer file.Close()

	ckt, err := utils.ParseNetlistReader(utils.CircuitName(header.Filename), io.LimitReader(file, s.cfg.Server.MaxUploadSize))
	if err != nil {
		s.failErr(c, logger, err)
		return nil, false
	}
	return ckt, true
}

// vectors parses the uploaded vector text or generates the configured default set
func (s *Server) vectors(text string, width int) ([][]bool, error) {
	if strings.TrimSpace(text) != "" {
		return utils.ParseVectors(text, width)
	}
	v := s.cfg.Vectors
	return utils.GenerateVectors(v.Source, width, v.Count, v.Seed)
}

// failErr maps a core error onto an HTTP status
func (s *Server) failErr(c *gin.Context, logger *slog.Logger, err error) {
	status, code := Classify(err)
	s.fail(c, logger, status, code, err)
}

func (s *Server) fail(c *gin.Context, logger *slog.Logger, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "code", code, "error", err)
	} else {
		logger.Warn("Request rejected", "code", code, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// Classify returns the HTTP status and error code for a core error
func Classify(err error) (int, string) {
	var (
		malformed *circuit.MalformedLineError
		gateType  *circuit.UnknownGateTypeError
		invalid   *circuit.ValidationError
		cycle     *circuit.CombinationalCycleError
		size      *circuit.InputSizeMismatchError
		target    *circuit.UnknownFaultTargetError
	)
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, "MALFORMED_LINE"
	case errors.As(err, &gateType):
		return http.StatusBadRequest, "UNKNOWN_GATE_TYPE"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "INVALID_CIRCUIT"
	case errors.As(err, &cycle):
		return http.StatusBadRequest, "COMBINATIONAL_CYCLE"
	case errors.As(err, &size):
		return http.StatusBadRequest, "INPUT_SIZE_MISMATCH"
	case errors.As(err, &target):
		return http.StatusBadRequest, "UNKNOWN_FAULT_TARGET"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "SIMULATION_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "SIMULATION_CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
