package expreval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestEvaluator_EvaluateBool(t *testing.T) {
	e := New(10)
	vars := models.NewVariableStore(map[string]interface{}{"x": 3})
	env := BuildEnvironment(vars, nil)

	ok, err := e.EvaluateBool(`GetGlobal("x") < 5`, env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool("", env)
	require.NoError(t, err)
	assert.True(t, ok, "empty guard/condition is true")
}

func TestEvaluator_EvaluateBool_NonBooleanIsError(t *testing.T) {
	e := New(10)
	env := BuildEnvironment(models.NewVariableStore(nil), nil)

	_, err := e.EvaluateBool(`1 + 1`, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConditionNotBoolean)
}

func TestEvaluator_EvaluateCollection(t *testing.T) {
	e := New(10)
	vars := models.NewVariableStore(map[string]interface{}{"items": []interface{}{1, 2, 3}})
	env := BuildEnvironment(vars, nil)

	items, err := e.EvaluateCollection(`GetGlobal("items")`, env)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestEvaluator_CachesCompiledProgram(t *testing.T) {
	e := New(10)
	env := BuildEnvironment(models.NewVariableStore(nil), nil)

	_, err := e.EvaluateBool("true", env)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Len())

	_, err = e.EvaluateBool("true", env)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Len())
}

func TestEvaluator_SetGlobalMutatesVariableStore(t *testing.T) {
	e := New(10)
	vars := models.NewVariableStore(nil)
	env := BuildEnvironment(vars, nil)

	_, err := e.Evaluate(`SetGlobal("count", 1)`, env)
	require.NoError(t, err)

	v, ok := vars.Get("count")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}
