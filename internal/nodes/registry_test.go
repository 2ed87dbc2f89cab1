package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/pkg/models"
)

func TestDefaultRegistry_HasEveryRuntimeType(t *testing.T) {
	r := DefaultRegistry()
	for _, rt := range []models.RuntimeType{
		models.RuntimeNoop, models.RuntimeCSharpTask, models.RuntimeCSharpScript,
		models.RuntimePowerShellTask, models.RuntimePowerShellScript,
		models.RuntimeIfElse, models.RuntimeSwitch, models.RuntimeForEach,
		models.RuntimeWhile, models.RuntimeContainer, models.RuntimeSubflow,
		models.RuntimeHTTPTask,
	} {
		assert.True(t, r.Has(rt), "missing constructor for %s", rt)
	}
}

func TestRegistry_NewInitializesNode(t *testing.T) {
	r := DefaultRegistry()
	node, err := r.New(&models.NodeDefinition{ID: "n1", Name: "noop", RuntimeType: models.RuntimeNoop})
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestRegistry_NewUnknownRuntimeType(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.New(&models.NodeDefinition{ID: "n1", RuntimeType: "bogus"})
	assert.ErrorIs(t, err, models.ErrUnknownRuntimeType)
}
