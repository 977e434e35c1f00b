package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-data/mapengine/pkg/execution"
	"github.com/strata-data/mapengine/pkg/mapping"
	"github.com/strata-data/mapengine/pkg/stages"
	"github.com/strata-data/mapengine/pkg/types"
)

type fakeStage struct {
	name string
	fn   func(interface{}) (interface{}, error)
}

func (f *fakeStage) Name() string { return f.name }
func (f *fakeStage) Apply(ctx context.Context, input interface{}, rc *stages.RuntimeContext) (interface{}, error) {
	return f.fn(input)
}

func passthrough(name string) *fakeStage {
	return &fakeStage{name: name, fn: func(v interface{}) (interface{}, error) { return v, nil }}
}

func failing(name string, err error) *fakeStage {
	return &fakeStage{name: name, fn: func(v interface{}) (interface{}, error) { return v, err }}
}

func testMapping() *mapping.Mapping {
	return &mapping.Mapping{ID: "m1", Version: "1", Rules: []mapping.Rule{{TargetField: "x", Type: mapping.RuleDirect, SourceField: "x"}}}
}

func TestPipeline_RunsPhasesInOrder(t *testing.T) {
	var order []string
	b := NewBuilder()
	b.AddStage(PhasePre, &fakeStage{name: "pre1", fn: func(v interface{}) (interface{}, error) {
		order = append(order, "pre1")
		return v, nil
	}})
	b.AddStage(PhaseTransform, &fakeStage{name: "t1", fn: func(v interface{}) (interface{}, error) {
		order = append(order, "t1")
		return v, nil
	}})
	b.AddStage(PhaseValidation, &fakeStage{name: "v1", fn: func(v interface{}) (interface{}, error) {
		order = append(order, "v1")
		return v, nil
	}})
	p := b.Build()
	p.WithMapping(testMapping(), nil)

	execCtx := execution.NewContext("exec-1", 0, 0)
	_, err := p.Execute(context.Background(), map[string]interface{}{"x": 1}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pre1", "t1", "v1"}, order)
}

func TestPipeline_AbortsOnErrorByDefault(t *testing.T) {
	b := NewBuilder()
	b.AddStage(PhaseTransform, failing("boom", errors.New("bad")))
	p := b.Build()
	p.WithMapping(testMapping(), nil)

	execCtx := execution.NewContext("exec-2", 0, 0)
	_, err := p.Execute(context.Background(), map[string]interface{}{}, execCtx)
	require.Error(t, err)

	var mappingErr *MappingExecutionError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "boom", mappingErr.Stage)
	assert.Equal(t, string(PhaseTransform), mappingErr.Phase)
}

func TestPipeline_ErrorHandlerCanContinue(t *testing.T) {
	b := NewBuilder()
	b.AddStage(PhaseTransform, failing("recoverable", errors.New("bad")))
	b.AddStage(PhaseTransform, passthrough("after"))
	b.OnError(PhaseTransform, func(stageName string, data map[string]interface{}, err error) (bool, map[string]interface{}) {
		data["recovered"] = true
		return true, data
	})
	p := b.Build()
	p.WithMapping(testMapping(), nil)

	execCtx := execution.NewContext("exec-3", 0, 0)
	out, err := p.Execute(context.Background(), map[string]interface{}{}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, out["recovered"])
}

func TestPipeline_MiddlewareObservesBeforeAndAfter(t *testing.T) {
	var seen []MiddlewarePhase
	b := NewBuilder()
	b.AddStage(PhaseTransform, passthrough("t1"))
	p := b.Build()
	p.WithMapping(testMapping(), nil)
	p.Use(func(ctx context.Context, data map[string]interface{}, execCtx MiddlewareContext, when MiddlewarePhase) (map[string]interface{}, error) {
		seen = append(seen, when)
		return data, nil
	})

	execCtx := execution.NewContext("exec-4", 0, 0)
	_, err := p.Execute(context.Background(), map[string]interface{}{}, execCtx)
	require.NoError(t, err)
	require.Len(t, seen, 8) // 4 phases * before+after
	assert.Equal(t, MiddlewareBefore, seen[0])
}

func TestPipeline_EmitsLifecycleEvents(t *testing.T) {
	var events []EventType
	b := NewBuilder()
	b.AddStage(PhaseTransform, passthrough("t1"))
	b.AddStage(PhaseTransform, failing("t2", errors.New("nope")))
	p := b.Build()
	p.WithMapping(testMapping(), nil)
	p.On(func(e Event) { events = append(events, e.Type) })

	execCtx := execution.NewContext("exec-5", 0, 0)
	_, err := p.Execute(context.Background(), map[string]interface{}{}, execCtx)
	require.Error(t, err)
	assert.Contains(t, events, EventStageStart)
	assert.Contains(t, events, EventStageComplete)
	assert.Contains(t, events, EventStageError)
}

func TestFromMapping_BuildsExpectedPhases(t *testing.T) {
	m := testMapping()
	m.QualityRules = []mapping.QualityRule{{Field: "x", Weight: 1}}
	p := FromMapping(m, nil)
	require.Len(t, p.phases, 4)

	var names []string
	for _, ph := range p.phases {
		for _, s := range ph.stages {
			names = append(names, s.Name())
		}
	}
	assert.Contains(t, names, "FieldMapping")
	assert.Contains(t, names, "DataQualityCheck")
}

func TestFromMapping_SourceSchemaAddsPreCheck(t *testing.T) {
	m := testMapping()
	m.SourceSchema = &types.UniversalSchema{
		Tables: []types.UniversalTable{{
			Columns: []types.UniversalColumn{{Name: "x", UniversalType: types.Varchar}},
		}},
	}
	p := FromMapping(m, nil)

	var names []string
	for _, s := range p.phases[0].stages {
		names = append(names, s.Name())
	}
	require.NotEmpty(t, names)
	assert.Equal(t, "SchemaPreCheck", names[0])
}

func TestFromMapping_NoSourceSchemaSkipsPreCheck(t *testing.T) {
	m := testMapping()
	p := FromMapping(m, nil)

	for _, s := range p.phases[0].stages {
		assert.NotEqual(t, "SchemaPreCheck", s.Name())
	}
}
