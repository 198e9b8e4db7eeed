// Package pipeline loads multi-stage pipeline files and runs their stages in
// dependency order.
//
// A pipeline file is HCL:
//
//	stage "norm" "normed" {
//	  dest = "out/norm"
//	  arguments {
//	    peptide_scores = "raw.tsv"
//	  }
//	}
//	stage "zscore" "z" {
//	  dest = "out/z"
//	  arguments {
//	    scores = stage.normed.table
//	    bins   = "bins.tsv"
//	  }
//	}
//
// References of the form stage.<name>.<output> create implicit dependencies
// and evaluate to the harvested output path. env.<NAME> reads the
// environment. depends_on adds explicit ordering.
package pipeline

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"pepkit/internal/logging"
	"pepkit/internal/stages"
)

// hclFile is the top-level structure of a pipeline file for decoding.
type hclFile struct {
	Stages []*hclStage `hcl:"stage,block"`
}

// hclStage represents a single stage block before evaluation.
type hclStage struct {
	Type      string         `hcl:"type,label"`
	Name      string         `hcl:"name,label"`
	Dest      hcl.Expression `hcl:"dest"`
	Outfile   hcl.Expression `hcl:"outfile,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
	Arguments *hclArguments  `hcl:"arguments,block"`
}

type hclArguments struct {
	Body hcl.Body `hcl:",remain"`
}

// Stage is one declared pipeline step.
type Stage struct {
	Name string
	Type string

	dest      hcl.Expression
	outfile   hcl.Expression
	arguments hcl.Body
	// attrs are the argument attributes, kept for dependency analysis.
	attrs hcl.Attributes

	// DependsOn lists every stage this one waits for, explicit or implicit,
	// in declaration order.
	DependsOn []string
}

// Pipeline is a validated set of stages.
type Pipeline struct {
	Path   string
	Stages []*Stage
	byName map[string]*Stage
	order  []string
}

// Stage returns the stage declared under name.
func (p *Pipeline) Stage(name string) (*Stage, bool) {
	s, ok := p.byName[name]
	return s, ok
}

// Order returns stage names in an execution order that respects every
// dependency. Ties keep declaration order.
func (p *Pipeline) Order() []string {
	return append([]string(nil), p.order...)
}

// LoadFile parses and validates the pipeline file at path.
func LoadFile(path string) (*Pipeline, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(src, path)
}

// Parse parses and validates pipeline source. filename is used in
// diagnostics.
func Parse(src []byte, filename string) (*Pipeline, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse pipeline file %s: %w", filename, diags)
	}

	var decoded hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode pipeline file %s: %w", filename, diags)
	}

	p := &Pipeline{Path: filename, byName: make(map[string]*Stage, len(decoded.Stages))}
	for _, block := range decoded.Stages {
		if _, ok := stages.NewParams(block.Type); !ok {
			return nil, fmt.Errorf("stage %q: unknown stage type %q (valid: %v)", block.Name, block.Type, stages.Types())
		}
		if _, dup := p.byName[block.Name]; dup {
			return nil, fmt.Errorf("stage %q declared more than once", block.Name)
		}
		s := &Stage{
			Name:      block.Name,
			Type:      block.Type,
			dest:      block.Dest,
			outfile:   block.Outfile,
			DependsOn: append([]string(nil), block.DependsOn...),
		}
		if block.Arguments != nil {
			attrs, diags := block.Arguments.Body.JustAttributes()
			if diags.HasErrors() {
				return nil, fmt.Errorf("stage %q arguments: %w", block.Name, diags)
			}
			s.arguments = block.Arguments.Body
			s.attrs = attrs
		}
		p.Stages = append(p.Stages, s)
		p.byName[s.Name] = s
	}

	if err := p.link(); err != nil {
		return nil, err
	}
	order, err := p.topoSort()
	if err != nil {
		return nil, err
	}
	p.order = order
	logging.PipelineDebug("loaded %s: %d stages, order %v", filename, len(p.Stages), order)
	return p, nil
}
