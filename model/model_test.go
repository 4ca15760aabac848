package model

import (
	"os"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
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

// smallContext returns hyperparameters scaled down so the test graphs stay
// cheap to build.
func smallContext() *context.Context {
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamNumWords:   16,
		ParamMaxLen:     8,
		ParamEmbedDim:   4,
		ParamLSTMHidden: 3,
	})
	return ctx
}

func TestSentimentGraphShapes(t *testing.T) {
	backend := backends.MustNew()
	ctx := smallContext()
	exec := context.MustNewExec(backend, ctx.In("model"), func(ctx *context.Context, tokens *Node) *Node {
		return SentimentGraph(ctx, nil, []*Node{tokens})[0]
	})
	tokens := tensors.FromFlatDataAndDimensions([]int32{
		1, 4, 5, 6, 0, 0, 0, 0,
		1, 7, 8, 9, 10, 11, 2, 3,
	}, 2, 8)
	logits := exec.MustExec(tokens)[0]
	require.NoError(t, logits.Shape().Check(dtypes.Float32, 2, 1))
}

func TestPredictGraphIsProbability(t *testing.T) {
	backend := backends.MustNew()
	ctx := smallContext()
	exec := context.MustNewExec(backend, ctx.In("model"), PredictGraph)
	tokens := tensors.FromFlatDataAndDimensions([]int32{
		1, 4, 5, 6, 0, 0, 0, 0,
		1, 7, 8, 9, 10, 11, 2, 3,
	}, 2, 8)
	probs := exec.MustExec(tokens)[0]
	require.NoError(t, probs.Shape().Check(dtypes.Float32, 2, 1))
	tensors.MustConstFlatData[float32](probs, func(values []float32) {
		for _, p := range values {
			assert.GreaterOrEqual(t, p, float32(0))
			assert.LessOrEqual(t, p, float32(1))
		}
	})
}
