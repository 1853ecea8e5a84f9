package utils

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
)

// Regular expressions for the netlist format. Whitespace is allowed around
// tokens; the captured ids are trimmed and checked by parseID.
var (
	inputRegex  = regexp.MustCompile(`(?i)^INPUT\s*\(([^()]*)\)$`)
	outputRegex = regexp.MustCompile(`(?i)^OUTPUT\s*\(([^()]*)\)$`)
	gateRegex   = regexp.MustCompile(`^([^=()]*)=\s*(\w+)\s*\(([^()]*)\)$`)
)

const maxLineLength = 1 << 20

// ParseNetlistFile reads a netlist file and returns a finalized Circuit.
// The circuit is named after the file, without .bench/.txt extensions.
func ParseNetlistFile(filename string) (*circuit.Circuit, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open netlist")
	}
	defer file.Close()

	return ParseNetlistReader(CircuitName(filename), file)
}

// CircuitName derives a circuit name from a netlist file name
func CircuitName(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, ".txt")
	name = strings.TrimSuffix(name, ".bench")
	return name
}

// ParseNetlist parses netlist text and returns a finalized Circuit
func ParseNetlist(name, text string) (*circuit.Circuit, error) {
	return ParseNetlistReader(name, strings.NewReader(text))
}

// ParseNetlistReader parses a netlist from r and returns a finalized Circuit.
//
// Parsing stops at the first bad line. On any error no circuit is returned.
func ParseNetlistReader(name string, r io.Reader) (*circuit.Circuit, error) {
	c := circuit.NewCircuit(name)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := parseLine(c, lineNo, scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading netlist")
	}

	if err := c.Finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseLine handles a single netlist line
func parseLine(c *circuit.Circuit, lineNo int, raw string) error {
	line := raw
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	malformed := func(reason string) error {
		return &circuit.MalformedLineError{Line: lineNo, Text: strings.TrimSpace(raw), Reason: reason}
	}

	if strings.Count(line, "(") != 1 || strings.Count(line, ")") != 1 ||
		strings.Index(line, "(") > strings.Index(line, ")") {
		return malformed("unbalanced parentheses")
	}
	if !strings.HasSuffix(line, ")") {
		return malformed("unexpected text after ')'")
	}

	// Handle INPUT declaration
	if matches := inputRegex.FindStringSubmatch(line); matches != nil {
		id, err := parseID(matches[1])
		if err != nil {
			return malformed(err.Error())
		}
		return atLine(lineNo, c.AddInput(id))
	}

	// Handle OUTPUT declaration
	if matches := outputRegex.FindStringSubmatch(line); matches != nil {
		id, err := parseID(matches[1])
		if err != nil {
			return malformed(err.Error())
		}
		return atLine(lineNo, c.AddOutput(id))
	}

	// Handle gate declaration
	matches := gateRegex.FindStringSubmatch(line)
	if matches == nil {
		return malformed("expected INPUT(id), OUTPUT(id) or id = GATE(ids)")
	}

	outputID, err := parseID(matches[1])
	if err != nil {
		return malformed(err.Error())
	}

	gateType, ok := circuit.ParseGateType(matches[2])
	if !ok {
		return &circuit.UnknownGateTypeError{Line: lineNo, Text: strings.TrimSpace(raw), Type: matches[2]}
	}

	inputNames := strings.Split(matches[3], ",")
	inputIDs := make([]int, 0, len(inputNames))
	for _, inputName := range inputNames {
		id, err := parseID(inputName)
		if err != nil {
			return malformed(err.Error())
		}
		inputIDs = append(inputIDs, id)
	}
	if gateType.IsUnary() && len(inputIDs) != 1 {
		return malformed(gateType.String() + " takes exactly one input")
	}

	_, err = c.AddGate(outputID, gateType, inputIDs)
	return atLine(lineNo, err)
}

// parseID parses a positive connection ID. Surrounding whitespace is
// ignored; anything but decimal digits inside the token is rejected.
func parseID(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, errors.New("missing connection id")
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, errors.Errorf("connection id %q is not a positive integer", token)
		}
	}
	id, err := strconv.Atoi(token)
	if err != nil {
		return 0, errors.Errorf("connection id %q is out of range", token)
	}
	if id <= 0 {
		return 0, errors.Errorf("connection id %d is not positive", id)
	}
	return id, nil
}

// atLine attaches a line number to circuit builder errors
func atLine(lineNo int, err error) error {
	var verr *circuit.ValidationError
	if errors.As(err, &verr) && verr.Line == 0 {
		verr.Line = lineNo
	}
	return err
}
