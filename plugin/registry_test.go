package plugin

import (
	"context"
	"testing"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct{}

func (fakeLoader) Load(ctx context.Context, path string) ([]model.Document, error) {
	return []model.Document{{ID: "1", Content: "hi"}}, nil
}

type incompleteLoader struct{}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(model.KindLoader, "pdf", fakeLoader{}))

	got, err := r.Get(model.KindLoader, "pdf")
	require.NoError(t, err)
	assert.Equal(t, fakeLoader{}, got)
}

func TestRegistry_ContractViolation(t *testing.T) {
	r := NewRegistry()
	err := r.Register(model.KindLoader, "bad", incompleteLoader{})
	require.Error(t, err)

	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.ContractViolation, kind)

	_, getErr := r.Get(model.KindLoader, "bad")
	require.Error(t, getErr)
	kind, ok = ragerr.KindOf(getErr)
	require.True(t, ok)
	assert.Equal(t, ragerr.PluginNotFound, kind)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()
	err := r.Register(model.PluginKind("bogus"), "x", fakeLoader{})
	require.Error(t, err)
	kind, ok := ragerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ragerr.UnknownKind, kind)
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	first := fakeLoader{}
	require.NoError(t, r.Register(model.KindLoader, "pdf", first))

	type secondLoader struct{ fakeLoader }
	second := secondLoader{}
	require.NoError(t, r.Register(model.KindLoader, "pdf", second))

	got, err := r.Get(model.KindLoader, "pdf")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(model.KindLoader, "pdf", fakeLoader{}))
	require.NoError(t, r.Register(model.KindLoader, "txt", fakeLoader{}))

	names, err := r.List(model.KindLoader)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pdf", "txt"}, names)
}
