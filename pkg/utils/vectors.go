package utils

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/fyerfyer/fault-sim/pkg/circuit"
)

// MaxExhaustiveWidth bounds ExhaustiveVectors to 2^20 vectors
const MaxExhaustiveWidth = 20

// ParseVectors parses test vectors, one per line, written as 0/1 characters.
// Whitespace inside a vector is ignored and '#' starts a comment.
// Every vector must have exactly width values.
func ParseVectors(text string, width int) ([][]bool, error) {
	vectors := make([][]bool, 0)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.Join(strings.Fields(line), "")
		if line == "" {
			continue
		}

		vec, err := ParseVector(line)
		if err != nil {
			return nil, errors.Wrapf(err, "vector line %d", lineNo)
		}
		if len(vec) != width {
			return nil, errors.Wrapf(&circuit.InputSizeMismatchError{Expected: width, Actual: len(vec)},
				"vector line %d", lineNo)
		}
		vectors = append(vectors, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading vectors")
	}
	return vectors, nil
}

// ParseVector parses a single vector such as "0110"
func ParseVector(s string) ([]bool, error) {
	vec := make([]bool, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			vec = append(vec, false)
		case '1':
			vec = append(vec, true)
		case ' ', '\t', ',':
		default:
			return nil, errors.Errorf("invalid character %q in vector %q", r, s)
		}
	}
	return vec, nil
}

// FormatVector renders a vector as 0/1 characters
func FormatVector(vec []bool) string {
	var b strings.Builder
	b.Grow(len(vec))
	for _, v := range vec {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// WriteTestVectors writes test vectors for circuit c, one per line
func WriteTestVectors(w io.Writer, c *circuit.Circuit, vectors [][]bool) error {
	writer := bufio.NewWriter(w)

	// Write header
	writer.WriteString("# Test vectors for " + c.Name + "\n")
	writer.WriteString("# Inputs:")
	for _, in := range c.Inputs {
		writer.WriteString(fmt.Sprintf(" %d", in.ID))
	}
	writer.WriteString("\n")

	for _, vec := range vectors {
		writer.WriteString(FormatVector(vec))
		writer.WriteString("\n")
	}

	return errors.Wrap(writer.Flush(), "failed to write test vectors")
}

// ExhaustiveVectors enumerates all 2^width vectors in counting order;
// the last primary input is the least significant bit
func ExhaustiveVectors(width int) ([][]bool, error) {
	if width < 0 || width > MaxExhaustiveWidth {
		return nil, errors.Errorf("exhaustive vectors limited to %d inputs, circuit has %d", MaxExhaustiveWidth, width)
	}

	count := 1 << width
	vectors := make([][]bool, count)
	for n := 0; n < count; n++ {
		vec := make([]bool, width)
		for bit := 0; bit < width; bit++ {
			vec[width-1-bit] = n&(1<<bit) != 0
		}
		vectors[n] = vec
	}
	return vectors, nil
}

// RandomVectors generates count pseudo-random vectors from seed.
// The same seed always yields the same vectors.
func RandomVectors(width, count int, seed int64) [][]bool {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]bool, count)
	for i := range vectors {
		vec := make([]bool, width)
		for j := range vec {
			vec[j] = rng.Int63()&(1<<62) != 0
		}
		vectors[i] = vec
	}
	return vectors
}

// GenerateVectors builds a vector set for a circuit with width inputs.
// Source "exhaustive" falls back to random vectors when the circuit is too
// wide to enumerate.
func GenerateVectors(source string, width, count int, seed int64) ([][]bool, error) {
	switch source {
	case "exhaustive":
		if width <= MaxExhaustiveWidth {
			return ExhaustiveVectors(width)
		}
		return RandomVectors(width, count, seed), nil
	case "random":
		return RandomVectors(width, count, seed), nil
	default:
		return nil, errors.Errorf("unknown vector source %q", source)
	}
}
