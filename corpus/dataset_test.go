package corpus

import (
	"os"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func init() {
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		// Tests default to the portable CPU backend.
		must.M(os.Setenv(backends.ConfigEnvVar, "go"))
	}
}

func TestNewDataset(t *testing.T) {
	backend := backends.MustNew()
	seqs := [][]int32{{1, 4, 5}, {1, 6}, {1, 7, 8, 9, 10}}
	labels := []int8{1, 0, 1}
	const maxLen = 4

	ds, err := NewDataset(backend, "test-ds", seqs, labels, maxLen)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.NumExamples())

	_, inputs, labelsOut, err := ds.BatchSize(3, false).Yield()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Len(t, labelsOut, 1)
	require.NoError(t, inputs[0].Shape().Check(dtypes.Int32, 3, maxLen))
	require.NoError(t, labelsOut[0].Shape().Check(dtypes.Int8, 3, 1))

	// Mismatched or empty inputs are rejected.
	_, err = NewDataset(backend, "bad", seqs, labels[:2], maxLen)
	assert.Error(t, err)
	_, err = NewDataset(backend, "empty", nil, nil, maxLen)
	assert.Error(t, err)
}
