// Package threshold parses and writes enrichment threshold specifications:
// tab-separated rows of (matrix path, threshold) consumed by the enrich stage.
//
// A threshold is either a single number N or a pair LOW,HIGH meaning every
// replicate must reach LOW and at least one must reach HIGH. The engine
// applies the semantics; values are checked for type only.
package threshold

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Threshold is one parsed threshold string.
type Threshold struct {
	Low  float64
	High float64
	Pair bool   // LOW,HIGH form
	Raw  string // original text, written back verbatim
}

// Parse reads "N" or "LOW,HIGH".
func Parse(s string) (Threshold, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Threshold{}, errors.New("empty threshold")
	}
	parts := strings.Split(raw, ",")
	switch len(parts) {
	case 1:
		v, err := parseNumber(parts[0])
		if err != nil {
			return Threshold{}, err
		}
		return Threshold{Low: v, High: v, Raw: raw}, nil
	case 2:
		low, err := parseNumber(parts[0])
		if err != nil {
			return Threshold{}, err
		}
		high, err := parseNumber(parts[1])
		if err != nil {
			return Threshold{}, err
		}
		return Threshold{Low: low, High: high, Pair: true, Raw: raw}, nil
	default:
		return Threshold{}, fmt.Errorf("threshold %q: expected N or LOW,HIGH", raw)
	}
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("threshold value %q is not a number", s)
	}
	return v, nil
}

func (t Threshold) String() string {
	if t.Raw != "" {
		return t.Raw
	}
	if t.Pair {
		return strconv.FormatFloat(t.Low, 'g', -1, 64) + "," + strconv.FormatFloat(t.High, 'g', -1, 64)
	}
	return strconv.FormatFloat(t.Low, 'g', -1, 64)
}

// Row pairs a scoring matrix with its threshold.
type Row struct {
	Matrix    string
	Threshold Threshold
}

// Spec is an ordered threshold table.
type Spec struct {
	Rows []Row
}

// Source is one (matrix, threshold) input to Synthesize. Either side may be
// empty; a row is emitted only when both are set.
type Source struct {
	Name      string // parameter name for messages
	Matrix    string
	Threshold string
}

// Synthesize builds a spec from matrix/threshold pairs. A matrix without a
// threshold, or a threshold without a matrix, is an error, as is a spec with
// no rows.
func Synthesize(sources []Source) (*Spec, error) {
	spec := &Spec{}
	for _, src := range sources {
		switch {
		case src.Matrix == "" && src.Threshold == "":
			continue
		case src.Matrix == "":
			return nil, fmt.Errorf("%s: threshold %q given without a matrix", src.Name, src.Threshold)
		case src.Threshold == "":
			return nil, fmt.Errorf("%s: matrix %s given without a threshold", src.Name, src.Matrix)
		}
		th, err := Parse(src.Threshold)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Name, err)
		}
		spec.Rows = append(spec.Rows, Row{Matrix: src.Matrix, Threshold: th})
	}
	if len(spec.Rows) == 0 {
		return nil, errors.New("no threshold rows: supply a threshold file or at least one matrix with a threshold")
	}
	return spec, nil
}

// Write encodes the spec as TSV with a trailing newline.
func (s *Spec) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, row := range s.Rows {
		if strings.ContainsAny(row.Matrix, "\t\n") {
			return fmt.Errorf("matrix path %q contains a tab or newline", row.Matrix)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", row.Matrix, row.Threshold); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the spec to path.
func (s *Spec) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Read parses a threshold table. Blank lines are skipped.
func Read(r io.Reader) (*Spec, error) {
	spec := &Spec{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected 2 tab-separated fields, got %d", line, len(fields))
		}
		th, err := Parse(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		spec.Rows = append(spec.Rows, Row{Matrix: fields[0], Threshold: th})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(spec.Rows) == 0 {
		return nil, errors.New("threshold file has no rows")
	}
	return spec, nil
}

// ReadFile parses the threshold table at path.
func ReadFile(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
