package registry

import (
	"sort"
	"strings"

	"reel/internal/services"
)

// Workflow identifies one of the supported pipeline workflows.
type Workflow string

const (
	WorkflowTranscribe Workflow = "transcribe"
	WorkflowTranslate  Workflow = "translate"
	WorkflowSubtitle   Workflow = "subtitle"
)

var allWorkflows = []Workflow{WorkflowTranscribe, WorkflowTranslate, WorkflowSubtitle}

// ArtifactType classifies a declared stage artifact.
type ArtifactType string

const (
	ArtifactMedia       ArtifactType = "media"
	ArtifactFingerprint ArtifactType = "fingerprint"
	ArtifactAudio       ArtifactType = "audio"
	ArtifactTranscript  ArtifactType = "transcript"
	ArtifactAlignment   ArtifactType = "alignment"
	ArtifactGlossary    ArtifactType = "glossary"
	ArtifactTranslation ArtifactType = "translation"
	ArtifactSubtitle    ArtifactType = "subtitle"
	ArtifactReport      ArtifactType = "report"
)

// Artifact is a declared stage output: a well-known name the runner validates
// and downstream stages resolve, never guessed from filename patterns.
type Artifact struct {
	Name      string
	Type      ArtifactType
	Mandatory bool
}

// InputRef declares a dependency on a prior stage's named output.
type InputRef struct {
	Stage    string
	Artifact string
	// Optional inputs are resolved when present but never fail resolution.
	Optional bool
}

// CacheLayer names the cache partition a stage's results live in.
type CacheLayer string

const (
	LayerNone        CacheLayer = ""
	LayerFingerprint CacheLayer = "fingerprint"
	LayerRecognition CacheLayer = "recognition"
	LayerTranslation CacheLayer = "translation"
	LayerGlossary    CacheLayer = "glossary"
)

// Definition is an immutable stage definition. Ordinals are spaced by ten so
// new stages slot between existing ones without renumbering.
type Definition struct {
	Name          string
	Ordinal       int
	Workflows     []Workflow
	OptionalFor   []Workflow
	DependsOn     []string
	Heavy         bool
	CacheLayer    CacheLayer
	Inputs        []InputRef
	Outputs       []Artifact
	SchemaVersion int
	// RequiredOptions must be present in the stage's configured options at
	// job creation; KnownOptions is the full accepted key set.
	RequiredOptions []string
	KnownOptions    []string
}

// AppliesTo reports whether the stage participates in the workflow.
func (d Definition) AppliesTo(w Workflow) bool {
	for _, candidate := range d.Workflows {
		if candidate == w {
			return true
		}
	}
	return false
}

// RequiredFor reports whether the stage's failure halts the workflow.
// Optional stages record a warning and the job continues.
func (d Definition) RequiredFor(w Workflow) bool {
	if !d.AppliesTo(w) {
		return false
	}
	for _, candidate := range d.OptionalFor {
		if candidate == w {
			return false
		}
	}
	return true
}

// MandatoryOutputs returns the outputs the runner must validate after a
// zero-exit stage run.
func (d Definition) MandatoryOutputs() []Artifact {
	var out []Artifact
	for _, artifact := range d.Outputs {
		if artifact.Mandatory {
			out = append(out, artifact)
		}
	}
	return out
}

// Output looks up a declared output by name.
func (d Definition) Output(name string) (Artifact, bool) {
	for _, artifact := range d.Outputs {
		if artifact.Name == name {
			return artifact, true
		}
	}
	return Artifact{}, false
}

var stages = []Definition{
	{
		Name:      "ingest",
		Ordinal:   10,
		Workflows: allWorkflows,
		Outputs: []Artifact{
			{Name: "source", Type: ArtifactMedia, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:       "fingerprint",
		Ordinal:    20,
		Workflows:  allWorkflows,
		DependsOn:  []string{"ingest"},
		CacheLayer: LayerFingerprint,
		Inputs: []InputRef{
			{Stage: "ingest", Artifact: "source"},
		},
		Outputs: []Artifact{
			{Name: "identity", Type: ArtifactFingerprint, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:      "audio-extract",
		Ordinal:   30,
		Workflows: allWorkflows,
		DependsOn: []string{"ingest"},
		Inputs: []InputRef{
			{Stage: "ingest", Artifact: "source"},
		},
		Outputs: []Artifact{
			{Name: "audio", Type: ArtifactAudio, Mandatory: true},
		},
		SchemaVersion: 1,
		KnownOptions:  []string{"sample_rate", "channels"},
	},
	{
		Name:       "recognition",
		Ordinal:    40,
		Workflows:  allWorkflows,
		DependsOn:  []string{"audio-extract", "fingerprint"},
		Heavy:      true,
		CacheLayer: LayerRecognition,
		Inputs: []InputRef{
			{Stage: "audio-extract", Artifact: "audio"},
		},
		Outputs: []Artifact{
			{Name: "transcript", Type: ArtifactTranscript, Mandatory: true},
		},
		SchemaVersion:   1,
		RequiredOptions: []string{"model"},
		KnownOptions:    []string{"model", "language", "beam_size"},
	},
	{
		Name:      "alignment",
		Ordinal:   50,
		Workflows: []Workflow{WorkflowSubtitle},
		DependsOn: []string{"recognition"},
		Heavy:     true,
		Inputs: []InputRef{
			{Stage: "audio-extract", Artifact: "audio"},
			{Stage: "recognition", Artifact: "transcript"},
		},
		Outputs: []Artifact{
			{Name: "aligned", Type: ArtifactAlignment, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:        "diarization",
		Ordinal:     60,
		Workflows:   []Workflow{WorkflowSubtitle},
		OptionalFor: []Workflow{WorkflowSubtitle},
		DependsOn:   []string{"audio-extract"},
		Heavy:       true,
		Inputs: []InputRef{
			{Stage: "audio-extract", Artifact: "audio"},
		},
		Outputs: []Artifact{
			{Name: "speakers", Type: ArtifactReport, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:       "glossary",
		Ordinal:    70,
		Workflows:  []Workflow{WorkflowTranslate, WorkflowSubtitle},
		DependsOn:  []string{"recognition"},
		CacheLayer: LayerGlossary,
		Inputs: []InputRef{
			{Stage: "recognition", Artifact: "transcript"},
		},
		Outputs: []Artifact{
			{Name: "terms", Type: ArtifactGlossary, Mandatory: true},
		},
		SchemaVersion: 1,
		KnownOptions:  []string{"source_id"},
	},
	{
		Name:       "translation",
		Ordinal:    80,
		Workflows:  []Workflow{WorkflowTranslate, WorkflowSubtitle},
		DependsOn:  []string{"recognition", "glossary"},
		Heavy:      true,
		CacheLayer: LayerTranslation,
		Inputs: []InputRef{
			{Stage: "recognition", Artifact: "transcript"},
			{Stage: "glossary", Artifact: "terms"},
		},
		Outputs: []Artifact{
			{Name: "translated", Type: ArtifactTranslation, Mandatory: true},
		},
		SchemaVersion:   1,
		RequiredOptions: []string{"target_language"},
		KnownOptions:    []string{"target_language", "source_language", "formality"},
	},
	{
		Name:      "subtitle-format",
		Ordinal:   90,
		Workflows: []Workflow{WorkflowSubtitle},
		DependsOn: []string{"alignment", "translation"},
		Inputs: []InputRef{
			{Stage: "alignment", Artifact: "aligned"},
			{Stage: "translation", Artifact: "translated"},
			{Stage: "diarization", Artifact: "speakers", Optional: true},
		},
		Outputs: []Artifact{
			{Name: "subtitles", Type: ArtifactSubtitle, Mandatory: true},
		},
		SchemaVersion: 1,
		KnownOptions:  []string{"format", "max_line_length"},
	},
	{
		Name:        "subtitle-mux",
		Ordinal:     100,
		Workflows:   []Workflow{WorkflowSubtitle},
		OptionalFor: []Workflow{WorkflowSubtitle},
		DependsOn:   []string{"subtitle-format"},
		Inputs: []InputRef{
			{Stage: "ingest", Artifact: "source"},
			{Stage: "subtitle-format", Artifact: "subtitles"},
		},
		Outputs: []Artifact{
			{Name: "muxed", Type: ArtifactMedia, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:        "qa-report",
		Ordinal:     110,
		Workflows:   []Workflow{WorkflowTranslate, WorkflowSubtitle},
		OptionalFor: []Workflow{WorkflowTranslate, WorkflowSubtitle},
		DependsOn:   []string{"translation"},
		Inputs: []InputRef{
			{Stage: "translation", Artifact: "translated"},
		},
		Outputs: []Artifact{
			{Name: "report", Type: ArtifactReport, Mandatory: true},
		},
		SchemaVersion: 1,
	},
	{
		Name:      "publish",
		Ordinal:   120,
		Workflows: allWorkflows,
		Inputs: []InputRef{
			{Stage: "recognition", Artifact: "transcript"},
			{Stage: "translation", Artifact: "translated", Optional: true},
			{Stage: "subtitle-format", Artifact: "subtitles", Optional: true},
		},
		Outputs: []Artifact{
			{Name: "bundle", Type: ArtifactReport, Mandatory: true},
		},
		SchemaVersion: 1,
	},
}

// Workflows returns the enumerated workflow names.
func Workflows() []Workflow {
	cp := make([]Workflow, len(allWorkflows))
	copy(cp, allWorkflows)
	return cp
}

// ParseWorkflow converts a string into a known Workflow.
func ParseWorkflow(value string) (Workflow, bool) {
	normalized := Workflow(strings.ToLower(strings.TrimSpace(value)))
	for _, w := range allWorkflows {
		if w == normalized {
			return w, true
		}
	}
	return "", false
}

// All returns every registered stage in ordinal order.
func All() []Definition {
	cp := make([]Definition, len(stages))
	copy(cp, stages)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Ordinal < cp[j].Ordinal })
	return cp
}

// Lookup returns the stage definition by name.
func Lookup(name string) (Definition, bool) {
	for _, stage := range stages {
		if stage.Name == name {
			return stage, true
		}
	}
	return Definition{}, false
}

// ForWorkflow returns the ordered stage list for a workflow. An unknown
// workflow is a configuration error surfaced at job creation, never mid-run.
func ForWorkflow(value string) ([]Definition, error) {
	workflow, ok := ParseWorkflow(value)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "registry", "resolve workflow",
			"unknown workflow "+strings.TrimSpace(value), nil)
	}
	var out []Definition
	for _, stage := range All() {
		if stage.AppliesTo(workflow) {
			out = append(out, stage)
		}
	}
	return out, nil
}
