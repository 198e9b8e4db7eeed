package pipeline

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"

	"pepkit/internal/stages"
)

// outputs holds harvested paths keyed by stage name and output key.
type outputs map[string]map[string]string

// evalContext exposes completed stage outputs under "stage" and the
// process environment under "env".
func evalContext(done outputs, environ []string) *hcl.EvalContext {
	stageVals := make(map[string]cty.Value, len(done))
	for name, paths := range done {
		attrs := make(map[string]cty.Value, len(paths))
		for key, path := range paths {
			attrs[key] = cty.StringVal(path)
		}
		stageVals[name] = cty.ObjectVal(attrs)
	}

	envVals := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		envVals[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			rootStage: cty.ObjectVal(stageVals),
			rootEnv:   cty.ObjectVal(envVals),
		},
	}
}

// resolved is a stage with every expression evaluated.
type resolved struct {
	params stages.Params
	target stages.Target
}

// resolve evaluates s against ctx and decodes its arguments into the stage
// type's parameters, starting from the documented defaults.
func (s *Stage) resolve(ctx *hcl.EvalContext) (*resolved, error) {
	params, ok := stages.NewParams(s.Type)
	if !ok {
		return nil, fmt.Errorf("stage %q: unknown stage type %q", s.Name, s.Type)
	}
	if s.arguments != nil {
		if diags := gohcl.DecodeBody(s.arguments, ctx, params); diags.HasErrors() {
			return nil, fmt.Errorf("stage %q arguments: %w", s.Name, diags)
		}
	}

	var dest string
	if diags := gohcl.DecodeExpression(s.dest, ctx, &dest); diags.HasErrors() {
		return nil, fmt.Errorf("stage %q dest: %w", s.Name, diags)
	}
	var outfile *string
	if s.outfile != nil {
		if diags := gohcl.DecodeExpression(s.outfile, ctx, &outfile); diags.HasErrors() {
			return nil, fmt.Errorf("stage %q outfile: %w", s.Name, diags)
		}
	}

	target := stages.Target{Dest: dest}
	if outfile != nil {
		target.Outfile = *outfile
	}
	return &resolved{params: params, target: target}, nil
}

// environ returns the process environment in a stable order.
func environ() []string {
	env := os.Environ()
	sort.Strings(env)
	return env
}
