package formats

import (
	"fmt"
	"io"
	"sort"

	"pepkit/internal/collection"
	"pepkit/internal/threshold"
)

// Canonical output names.
const (
	FailedEnrichmentFile = "failedEnrichment.txt"
	EnrichedSuffix       = "enriched"
	EnrichedExt          = ".txt"
)

var (
	ContingencyMatrix = &Format{Name: "ContingencyMatrix", Header: "Sequence name\t", Canonical: "pepsirf-table.tsv"}
	LinkMap           = &Format{Name: "LinkMap", Header: "Peptide Name\t", Canonical: "link.tsv"}
	DeconvSingular    = &Format{Name: "DeconvSingular", Header: "Species Name\t", Canonical: "deconv.tsv"}
	ScorePerRound     = &Format{Name: "ScorePerRound", Header: "Species ID\t"}
	PeptideAssignMap  = &Format{Name: "PeptideAssignMap", Header: "Peptide\t"}
	SumOfProbes       = &Format{Name: "SumOfProbes", Header: "Sample name\t", Canonical: "sum-of-probes.tsv"}
	NaNReport         = &Format{Name: "NaNReport", Header: "Probe name\t", Canonical: "nan-zscores.nan"}
	DemuxDiagnostic   = &Format{Name: "DemuxDiagnostic", Header: "Sample name\t", Canonical: "diagnostic.tsv"}
	PeptideBins       = &Format{Name: "PeptideBins", Canonical: "bins.tsv"}
	PeptideIDList     = &Format{Name: "PeptideIDList"}
	PeptideFasta      = &Format{Name: "PeptideFasta"}
	ProteinFasta      = &Format{Name: "ProteinFasta"}
	NameList          = &Format{Name: "NameList", Canonical: "names.txt"}
	EnrichThreshFile  = &Format{Name: "EnrichThreshFile", Rows: func(r io.Reader) error {
		_, err := threshold.Read(r)
		return err
	}}
	SubjoinMultiFile = &Format{Name: "SubjoinMultiFile"}
	Fastq            = &Format{Name: "Fastq"}
	DemuxIndex       = &Format{Name: "DemuxIndex"}
	DemuxSampleList  = &Format{Name: "DemuxSampleList"}
	DemuxFIF         = &Format{Name: "DemuxFIF"}
	DemuxLibrary     = &Format{Name: "DemuxLibrary"}
	IDNameMap        = &Format{Name: "IDNameMap"}

	EnrichedPeptideDir = &Format{
		Name:      "EnrichedPeptideDir",
		Kind:      KindCollection,
		Member:    PeptideIDList,
		Pattern:   collection.Comparison(EnrichedSuffix, EnrichedExt),
		Sentinels: []string{FailedEnrichmentFile},
	}
	ScorePerRoundDir = &Format{
		Name:    "ScorePerRoundDir",
		Kind:    KindCollection,
		Member:  ScorePerRound,
		Pattern: collection.Rounds(),
	}
	// DeconvBatchDir and PeptideAssignMapDir depend on run-time suffixes;
	// callers pass the concrete pattern to OpenCollection.
	DeconvBatchDir = &Format{
		Name:    "DeconvBatchDir",
		Kind:    KindCollection,
		Member:  DeconvSingular,
		Pattern: collection.Comparison("", ""),
	}
	PeptideAssignMapDir = &Format{
		Name:    "PeptideAssignMapDir",
		Kind:    KindCollection,
		Member:  PeptideAssignMap,
		Pattern: collection.Comparison("", ".map"),
	}
)

var registry = map[string]*Format{}

func register(formats ...*Format) {
	for _, f := range formats {
		if _, dup := registry[f.Name]; dup {
			panic(fmt.Sprintf("format %s registered twice", f.Name))
		}
		registry[f.Name] = f
	}
}

func init() {
	register(
		ContingencyMatrix, LinkMap, DeconvSingular, ScorePerRound, PeptideAssignMap,
		SumOfProbes, NaNReport, DemuxDiagnostic, PeptideBins, PeptideIDList,
		PeptideFasta, ProteinFasta, NameList, EnrichThreshFile, SubjoinMultiFile,
		Fastq, DemuxIndex, DemuxSampleList, DemuxFIF, DemuxLibrary, IDNameMap,
		EnrichedPeptideDir, ScorePerRoundDir, DeconvBatchDir, PeptideAssignMapDir,
	)
}

// Lookup returns the format registered under name.
func Lookup(name string) (*Format, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names lists registered format names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks path against f, dispatching on the format kind.
func Validate(f *Format, path string) error {
	if f.Kind == KindCollection {
		_, err := f.OpenCollection(path, nil)
		return err
	}
	return f.ValidateFile(path)
}
