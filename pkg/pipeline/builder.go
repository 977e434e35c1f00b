package pipeline

import (
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/stages"
)

// PhaseName enumerates the four fixed phases a pipeline runs, in order.
type PhaseName string

const (
	PhasePre        PhaseName = "pre"
	PhaseTransform  PhaseName = "transform"
	PhaseValidation PhaseName = "validation"
	PhasePost       PhaseName = "post"
)

var phaseOrder = []PhaseName{PhasePre, PhaseTransform, PhaseValidation, PhasePost}

// ErrorHandler decides, on a stage failure, whether the pipeline should
// continue to the next stage (optionally substituting data) or abort.
type ErrorHandler func(stageName string, data map[string]interface{}, err error) (cont bool, next map[string]interface{})

// stopOnFirstError is the default handler for every phase: abort
// immediately, leaving data untouched.
func stopOnFirstError(_ string, data map[string]interface{}, _ error) (bool, map[string]interface{}) {
	return false, data
}

type phase struct {
	name    PhaseName
	stages  []stages.Stage
	handler ErrorHandler
}

// Builder collects stages into phase lists plus per-phase error
// handlers before producing an immutable Pipeline.
type Builder struct {
	phases map[PhaseName]*phase
}

func NewBuilder() *Builder {
	b := &Builder{phases: make(map[PhaseName]*phase, len(phaseOrder))}
	for _, name := range phaseOrder {
		b.phases[name] = &phase{name: name, handler: stopOnFirstError}
	}
	return b
}

// AddStage appends a stage to the named phase.
func (b *Builder) AddStage(phaseName PhaseName, stage stages.Stage) *Builder {
	b.phases[phaseName].stages = append(b.phases[phaseName].stages, stage)
	return b
}

// OnError overrides the default abort-on-error handler for a phase.
func (b *Builder) OnError(phaseName PhaseName, handler ErrorHandler) *Builder {
	b.phases[phaseName].handler = handler
	return b
}

// Build finalizes the phase lists into a Pipeline, in phase order.
func (b *Builder) Build() *Pipeline {
	ordered := make([]*phase, 0, len(phaseOrder))
	for _, name := range phaseOrder {
		ordered = append(ordered, b.phases[name])
	}
	return &Pipeline{phases: ordered}
}

// FromMapping builds the default pipeline for a mapping: a schema
// pre-check leads the pre phase when sourceSchema is set, preprocessing
// and postprocessing stage names resolve through the stage registry,
// field mapping and conditional aggregation/enrichment populate the
// transform phase, and validation runs strict-mode checks followed by
// a quality gate when quality rules are configured.
func FromMapping(m *mapping.Mapping, onPhaseError map[PhaseName]ErrorHandler) *Pipeline {
	b := NewBuilder()

	if m.SourceSchema != nil {
		b.AddStage(PhasePre, stages.NewSchemaPreCheckStage())
	}

	for _, name := range m.Preprocessing {
		if stage, ok := resolveStage(name); ok {
			b.AddStage(PhasePre, stage)
		}
	}
	if len(m.Preprocessing) == 0 {
		b.AddStage(PhasePre, stages.NewDataSanitizationStage())
	}

	b.AddStage(PhaseTransform, stages.NewFieldMappingStage())
	if len(m.EnrichmentRules) > 0 {
		b.AddStage(PhaseTransform, stages.NewDataEnrichmentStage())
	}
	if m.Aggregation != nil {
		b.AddStage(PhaseTransform, stages.NewDataAggregationStage())
	}

	b.AddStage(PhaseValidation, stages.NewDataValidationStage())
	if len(m.QualityRules) > 0 {
		b.AddStage(PhaseValidation, stages.NewDataQualityCheckStage())
	}

	for _, name := range m.Postprocessing {
		if stage, ok := resolveStage(name); ok {
			b.AddStage(PhasePost, stage)
		}
	}

	for phaseName, handler := range onPhaseError {
		b.OnError(phaseName, handler)
	}

	return b.Build()
}
