package component_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/errors"
)

type stubComponent struct{}

func (stubComponent) Meta() component.Metadata {
	return component.Metadata{Name: "stub", Type: "conduit", Version: "1.0.0"}
}
func (stubComponent) InputPorts() []component.Port  { return nil }
func (stubComponent) OutputPorts() []component.Port { return nil }
func (stubComponent) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{Type: "object"}
}
func (stubComponent) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: true, LastCheck: time.Now()}
}

func stubFactory(raw json.RawMessage, deps component.Dependencies, emit component.Emitter) (component.Discoverable, error) {
	return stubComponent{}, nil
}

func TestRegisterAndCreate(t *testing.T) {
	reg := component.NewRegistry()
	err := reg.Register(&component.Registration{
		Name:    "stub",
		Type:    "conduit",
		Schema:  component.ConfigSchema{Type: "object", Required: []string{"name"}},
		Factory: stubFactory,
	})
	require.NoError(t, err)

	_, err = reg.Create("stub", json.RawMessage(`{"name":"a"}`), component.Dependencies{}, nil)
	require.NoError(t, err)

	_, err = reg.Create("stub", json.RawMessage(`{}`), component.Dependencies{}, nil)
	require.Error(t, err)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	reg := component.NewRegistry()
	r := &component.Registration{Name: "stub", Type: "conduit", Factory: stubFactory}
	require.NoError(t, reg.Register(r))

	err := reg.Register(r)
	require.Error(t, err)
	ke, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.DuplicateId, ke.Kind)
}

func TestCreateUnknownTypeNotFound(t *testing.T) {
	reg := component.NewRegistry()
	_, err := reg.Create("missing", nil, component.Dependencies{}, nil)
	require.Error(t, err)
	ke, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ComponentNotFound, ke.Kind)
}

func TestValidateAgainstSchemaEnumAndBounds(t *testing.T) {
	schema := component.ConfigSchema{
		Type: "object",
		Properties: map[string]component.PropertySchema{
			"level": {Type: "string", Enum: []string{"debug", "info"}},
			"rate":  {Type: "int", Minimum: component.Float64Ptr(1), Maximum: component.Float64Ptr(10)},
		},
	}

	require.NoError(t, component.ValidateAgainstSchema(json.RawMessage(`{"level":"info","rate":5}`), schema))
	require.Error(t, component.ValidateAgainstSchema(json.RawMessage(`{"level":"bogus"}`), schema))
	require.Error(t, component.ValidateAgainstSchema(json.RawMessage(`{"rate":100}`), schema))
}
