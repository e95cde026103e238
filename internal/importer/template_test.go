package importer_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishkeep/parishkeep/internal/importer"
	"github.com/parishkeep/parishkeep/internal/testutil"
)

func TestGenerateTemplate_Layout(t *testing.T) {
	catalog := importer.Catalog()
	data := importer.GenerateTemplate(catalog)

	tf, err := importer.Tokenize(data)
	require.NoError(t, err)

	require.Len(t, tf.Header.Fields, len(catalog))
	for i, f := range catalog {
		assert.Equal(t, f.Label, tf.Header.Fields[i])
	}
	require.Len(t, tf.Rows, 1)
	assert.Empty(t, tf.BadRows)
}

func TestGenerateTemplate_MapsWithoutOverrides(t *testing.T) {
	catalog := importer.Catalog()
	data := importer.GenerateTemplate(catalog)

	tf, err := importer.Tokenize(data)
	require.NoError(t, err)

	m, err := importer.ResolveMapping(tf.Header.Fields, catalog, nil)
	require.NoError(t, err)

	for _, f := range catalog {
		_, ok := m.Column(f.Key)
		assert.True(t, ok, "field %s not mapped from its own template header", f.Key)
	}
}

func TestGenerateTemplate_RoundTripImports(t *testing.T) {
	store := testutil.NewInMemoryMemberStore()
	imp := importer.New(store, slog.Default())

	data := importer.GenerateTemplate(imp.Catalog())

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, store.Count())
}
