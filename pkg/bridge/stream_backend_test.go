package bridge

import (
	"context"
	"testing"

	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/stretchr/testify/require"
)

func TestNewStreamBackendFromValues_InMemoryDefaults(t *testing.T) {
	backend, err := NewStreamBackendFromValues(context.Background(), values.New())
	require.NoError(t, err)
	require.NotNil(t, backend)
	require.NotNil(t, backend.EventRouter())
	require.NotNil(t, backend.Publisher())

	sub, owned, err := backend.BuildSubscriber(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, sub)
	require.False(t, owned)

	require.NoError(t, backend.Close())
}

func TestNewStreamBackendFromValues_RequiresValues(t *testing.T) {
	_, err := NewStreamBackendFromValues(context.Background(), nil)
	require.ErrorContains(t, err, "parsed values are nil")
}
