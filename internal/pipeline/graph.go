package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"

	"pepkit/internal/stages"
)

// Roots a stage expression may refer to.
const (
	rootStage = "stage"
	rootEnv   = "env"
)

// stageRef is a parsed stage.<name>.<output> traversal.
type stageRef struct {
	Stage  string
	Output string
}

// parseStageTraversal analyzes a traversal rooted at "stage". Anything
// shorter than stage.<name>.<output> is an error.
func parseStageTraversal(traversal hcl.Traversal) (*stageRef, error) {
	if len(traversal) < 3 {
		return nil, fmt.Errorf("reference %s must have the form stage.<name>.<output>", formatTraversal(traversal))
	}
	nameAttr, nameOk := traversal[1].(hcl.TraverseAttr)
	outputAttr, outputOk := traversal[2].(hcl.TraverseAttr)
	if !nameOk || !outputOk {
		return nil, fmt.Errorf("reference %s must have the form stage.<name>.<output>", formatTraversal(traversal))
	}
	return &stageRef{Stage: nameAttr.Name, Output: outputAttr.Name}, nil
}

func formatTraversal(traversal hcl.Traversal) string {
	var b strings.Builder
	for i, step := range traversal {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			b.WriteString(s.Name)
		case hcl.TraverseAttr:
			b.WriteString("." + s.Name)
		case hcl.TraverseIndex:
			b.WriteString("[...]")
		default:
			if i > 0 {
				b.WriteString(".?")
			}
		}
	}
	return b.String()
}

// expressions returns every expression of s that is evaluated at run time.
func (s *Stage) expressions() []hcl.Expression {
	exprs := []hcl.Expression{s.dest, s.outfile}
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exprs = append(exprs, s.attrs[name].Expr)
	}
	return exprs
}

// link validates references and records implicit dependencies.
func (p *Pipeline) link() error {
	for _, s := range p.Stages {
		deps := make(map[string]bool)
		for _, name := range s.DependsOn {
			if _, ok := p.byName[name]; !ok {
				return fmt.Errorf("stage %q depends_on unknown stage %q", s.Name, name)
			}
			deps[name] = true
		}

		for _, expr := range s.expressions() {
			if expr == nil {
				continue
			}
			for _, traversal := range expr.Variables() {
				switch traversal.RootName() {
				case rootEnv:
					continue
				case rootStage:
				default:
					return fmt.Errorf("stage %q: unknown reference %s (expected stage.<name>.<output> or env.<NAME>)", s.Name, formatTraversal(traversal))
				}
				ref, err := parseStageTraversal(traversal)
				if err != nil {
					return fmt.Errorf("stage %q: %w", s.Name, err)
				}
				dep, ok := p.byName[ref.Stage]
				if !ok {
					return fmt.Errorf("stage %q refers to unknown stage %q", s.Name, ref.Stage)
				}
				if !hasOutput(dep.Type, ref.Output) {
					return fmt.Errorf("stage %q refers to %s.%s, but %s stages produce %v", s.Name, ref.Stage, ref.Output, dep.Type, stages.Outputs(dep.Type))
				}
				if !deps[ref.Stage] {
					deps[ref.Stage] = true
					s.DependsOn = append(s.DependsOn, ref.Stage)
				}
			}
		}
	}
	return nil
}

func hasOutput(stageType, key string) bool {
	for _, k := range stages.Outputs(stageType) {
		if k == key {
			return true
		}
	}
	return false
}

// topoSort orders stages topologically, preferring declaration order, and
// reports the first cycle found.
func (p *Pipeline) topoSort() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(p.Stages))
	order := make([]string, 0, len(p.Stages))

	var visit func(s *Stage, path []string) error
	visit = func(s *Stage, path []string) error {
		switch state[s.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s", strings.Join(append(path, s.Name), " -> "))
		}
		state[s.Name] = visiting
		for _, dep := range s.DependsOn {
			if err := visit(p.byName[dep], append(path, s.Name)); err != nil {
				return err
			}
		}
		state[s.Name] = done
		order = append(order, s.Name)
		return nil
	}
	for _, s := range p.Stages {
		if err := visit(s, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// dependents maps each stage to the stages waiting on it.
func (p *Pipeline) dependents() map[string][]string {
	out := make(map[string][]string, len(p.Stages))
	for _, s := range p.Stages {
		for _, dep := range s.DependsOn {
			out[dep] = append(out[dep], s.Name)
		}
	}
	return out
}
