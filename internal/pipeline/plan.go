package pipeline

import (
	"fmt"
	"io"
	"strings"

	"pepkit/internal/stages"
)

// ScratchPlaceholder stands in for the scratch directory in previews.
const ScratchPlaceholder = "<scratch>"

// Previewer composes argv without running anything. *stages.Runner
// implements it.
type Previewer interface {
	Preview(p stages.Params, scratch string) ([]string, error)
}

// PlannedStage describes one stage of a dry run.
type PlannedStage struct {
	Name      string
	Type      string
	DependsOn []string
	Outputs   []string
	Dest      string
	// Args is the argv preview; nil when it cannot be composed yet.
	Args []string
	// Note explains a missing preview.
	Note string
}

// Plan returns the stages in execution order with their argv where it can
// be composed up front. Stages consuming upstream outputs are listed
// without a preview since those files do not exist yet.
func Plan(p *Pipeline, pv Previewer, env []string) []PlannedStage {
	if env == nil {
		env = environ()
	}
	evalCtx := evalContext(outputs{}, env)
	planned := make([]PlannedStage, 0, len(p.Stages))
	for _, name := range p.order {
		s := p.byName[name]
		ps := PlannedStage{
			Name:      s.Name,
			Type:      s.Type,
			DependsOn: append([]string(nil), s.DependsOn...),
			Outputs:   stages.Outputs(s.Type),
		}
		if s.consumesOutputs() {
			ps.Note = "arguments use upstream outputs; argv is composed at run time"
			planned = append(planned, ps)
			continue
		}
		rs, err := s.resolve(evalCtx)
		if err != nil {
			ps.Note = err.Error()
			planned = append(planned, ps)
			continue
		}
		ps.Dest = rs.target.Dest
		args, err := pv.Preview(rs.params, ScratchPlaceholder)
		if err != nil {
			ps.Note = err.Error()
		} else {
			ps.Args = args
		}
		planned = append(planned, ps)
	}
	return planned
}

// consumesOutputs reports whether any expression of s refers to another
// stage's outputs.
func (s *Stage) consumesOutputs() bool {
	for _, expr := range s.expressions() {
		if expr == nil {
			continue
		}
		for _, traversal := range expr.Variables() {
			if traversal.RootName() == rootStage {
				return true
			}
		}
	}
	return false
}

// WritePlan prints a plan in a human readable form.
func WritePlan(w io.Writer, planned []PlannedStage) error {
	for i, ps := range planned {
		if _, err := fmt.Fprintf(w, "%d. %s (%s)\n", i+1, ps.Name, ps.Type); err != nil {
			return err
		}
		if len(ps.DependsOn) > 0 {
			fmt.Fprintf(w, "   after:   %s\n", strings.Join(ps.DependsOn, ", "))
		}
		fmt.Fprintf(w, "   outputs: %s\n", strings.Join(ps.Outputs, ", "))
		if ps.Dest != "" {
			fmt.Fprintf(w, "   dest:    %s\n", ps.Dest)
		}
		if ps.Args != nil {
			fmt.Fprintf(w, "   argv:    %s\n", strings.Join(ps.Args, " "))
		}
		if ps.Note != "" {
			fmt.Fprintf(w, "   note:    %s\n", ps.Note)
		}
	}
	return nil
}
