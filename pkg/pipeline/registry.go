package pipeline

import "github.com/strata-data/mapengine/pkg/stages"

// StageFactory builds a fresh stage instance. Stages are stateless, so a
// single instance is safe to reuse across phases and invocations, but
// factories are kept so custom stages can carry their own construction
// arguments.
type StageFactory func() stages.Stage

var stageRegistry = map[string]StageFactory{
	"schemaPreCheck":   func() stages.Stage { return stages.NewSchemaPreCheckStage() },
	"dataValidation":   func() stages.Stage { return stages.NewDataValidationStage() },
	"dataSanitization": func() stages.Stage { return stages.NewDataSanitizationStage() },
	"fieldMapping":     func() stages.Stage { return stages.NewFieldMappingStage() },
	"dataAggregation":  func() stages.Stage { return stages.NewDataAggregationStage() },
	"dataQualityCheck": func() stages.Stage { return stages.NewDataQualityCheckStage() },
	"dataEnrichment":   func() stages.Stage { return stages.NewDataEnrichmentStage() },
}

// RegisterStage adds or overrides a named stage factory, in the style of
// pkg/position's RegisterTracker.
func RegisterStage(name string, factory StageFactory) {
	stageRegistry[name] = factory
}

func resolveStage(name string) (stages.Stage, bool) {
	factory, ok := stageRegistry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}
