package stages

import "sort"

// constructors return parameter sets pre-filled with defaults, ready to be
// decoded into.
var constructors = map[string]func() Params{
	"norm":         func() Params { p := DefaultNormParams(); return &p },
	"bin":          func() Params { p := DefaultBinParams(); return &p },
	"zscore":       func() Params { p := DefaultZscoreParams(); return &p },
	"enrich":       func() Params { p := DefaultEnrichParams(); return &p },
	"link":         func() Params { return &LinkParams{} },
	"deconv":       func() Params { p := DefaultDeconvParams(); return &p },
	"deconv_batch": func() Params { p := DefaultDeconvBatchParams(); return &p },
	"demux":        func() Params { p := DefaultDemuxParams(); return &p },
	"subjoin":      func() Params { p := DefaultSubjoinParams(); return &p },
	"info":         func() Params { return &InfoParams{} },
}

// outputKeys are the output names each stage type declares.
var outputKeys = map[string][]string{
	"norm":         {"table"},
	"bin":          {"bins"},
	"zscore":       {"zscores", "nan_report"},
	"enrich":       {"enriched_dir"},
	"link":         {"link_map"},
	"deconv":       {"table", "score_per_round"},
	"deconv_batch": {"dir", "score_per_round", "map_dir"},
	"demux":        {"raw", "diagnostic"},
	"subjoin":      {"table"},
	"info":         {"report"},
}

// Outputs lists the output keys of a stage type without planning it.
func Outputs(stageType string) []string {
	return append([]string(nil), outputKeys[stageType]...)
}

// NewParams returns default parameters for a stage type.
func NewParams(stageType string) (Params, bool) {
	ctor, ok := constructors[stageType]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Types lists the known stage types.
func Types() []string {
	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
