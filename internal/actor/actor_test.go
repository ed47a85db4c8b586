package actor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pingInput struct {
	N int `json:"n" validate:"min=1"`
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Name: "worker.ping", Module: "worker", Kind: Cooperative}
	require.NoError(t, r.Register(d))
	require.Error(t, r.Register(d))
}

func TestRegistryLookupAndModules(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "worker.ping", Module: "worker", Kind: Cooperative}))
	require.NoError(t, r.Register(Descriptor{Name: "worker.pong", Module: "worker", Kind: Blocking}))

	d, ok := r.Lookup("worker.ping")
	require.True(t, ok)
	require.Equal(t, Cooperative, d.Kind)

	_, ok = r.Lookup("worker.missing")
	require.False(t, ok)

	require.ElementsMatch(t, []string{"worker"}, r.Modules())
}

func TestDescriptorValidateInputRejectsBadContent(t *testing.T) {
	d := Descriptor{Name: "worker.ping", InputSchema: pingInput{}}
	require.Error(t, d.ValidateInput(map[string]any{"n": 0}))
	require.NoError(t, d.ValidateInput(map[string]any{"n": 3}))
}

func TestDescriptorValidateInputSkippedWhenNoSchema(t *testing.T) {
	d := Descriptor{Name: "worker.ping"}
	require.NoError(t, d.ValidateInput(map[string]any{"anything": true}))
}
