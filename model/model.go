// Package model defines the bidirectional LSTM sentiment classifier graph and
// its default hyperparameters.
//
// The model takes batches of encoded token sequences, shaped
// (int32)[batch_size, max_len], and returns one logit per example. A positive
// logit means positive sentiment.
package model

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/layers/lstm"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
)

// DType used by the model weights and activations.
var DType = dtypes.Float32

// Hyperparameter names used in the context. See CreateDefaultContext for their
// default values.
const (
	ParamNumWords        = "num_words"
	ParamMaxLen          = "max_len"
	ParamEmbedDim        = "embed_dim"
	ParamLSTMHidden      = "lstm_hidden"
	ParamLSTMDropout     = "lstm_dropout"
	ParamHeadDropout     = "dropout"
	ParamEpochs          = "epochs"
	ParamBatchSize       = "batch_size"
	ParamEvalBatchSize   = "eval_batch_size"
	ParamPlateauFactor   = "lr_plateau_factor"
	ParamPlateauPatience = "lr_plateau_patience"
	ParamMinLearningRate = "lr_min"
)

// CreateDefaultContext sets the context with the default hyperparameters used
// for training.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.ResetRNGState()
	ctx.SetParams(map[string]any{
		// Vocabulary cap and fixed sequence length after padding/truncation.
		ParamNumWords: 20_000,
		ParamMaxLen:   200,

		// Architecture.
		ParamEmbedDim:    128,
		ParamLSTMHidden:  64,
		ParamLSTMDropout: 0.3,
		ParamHeadDropout: 0.5,

		// Training schedule.
		ParamEpochs:        15,
		ParamBatchSize:     64,
		ParamEvalBatchSize: 200,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.001,

		// Learning rate decay on validation loss plateaus.
		ParamPlateauFactor:   0.5,
		ParamPlateauPatience: 2,
		ParamMinLearningRate: 0.0001,

		"num_checkpoints": 3,
	})
	return ctx
}

// SentimentGraph builds the classifier graph.
//
// inputs[0] must hold the encoded token ids, shaped
// (int32)[batch_size, max_len]. It returns a single output, the logits shaped
// (float32)[batch_size, 1].
func SentimentGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	tokens := inputs[0]
	embedDim := context.GetParamOr(ctx, ParamEmbedDim, 128)
	numWords := context.GetParamOr(ctx, ParamNumWords, 20_000)
	hiddenSize := context.GetParamOr(ctx, ParamLSTMHidden, 64)
	lstmDropout := context.GetParamOr(ctx, ParamLSTMDropout, 0.3)
	headDropout := context.GetParamOr(ctx, ParamHeadDropout, 0.5)

	// Embed tokens: [batch_size, max_len] -> [batch_size, max_len, embed_dim].
	embed := layers.Embedding(ctx.In("embeddings"), tokens, DType, numWords, embedDim, false)

	// Dropout on the embedded sequence, applied only during training.
	if lstmDropout > 0 {
		embed = layers.DropoutStatic(ctx.In("embeddings_dropout"), embed, lstmDropout)
	}

	// Bidirectional LSTM over the sequence. Only the last hidden state of each
	// direction is used, concatenated to shape [batch_size, 2*hidden_size].
	_, lastHidden, _ := lstm.New(ctx.In("lstm"), embed, hiddenSize).
		Direction(lstm.DirBidirectional).
		Done()
	forward := Squeeze(Slice(lastHidden, AxisRange(0, 1)), 0)
	backward := Squeeze(Slice(lastHidden, AxisRange(1, 2)), 0)
	logits := Concatenate([]*Node{forward, backward}, -1)

	// Classifier head.
	logits = layers.DenseWithBias(ctx.In("hidden0"), logits, 64)
	logits = activations.Relu(logits)
	logits = batchnorm.New(ctx.In("hidden0_norm"), logits, -1).Done()
	if headDropout > 0 {
		logits = layers.DropoutStatic(ctx.In("hidden0_dropout"), logits, headDropout)
	}
	logits = layers.DenseWithBias(ctx.In("hidden1"), logits, 32)
	logits = activations.Relu(logits)
	logits = layers.DenseWithBias(ctx.In("readout"), logits, 1)
	return []*Node{logits}
}

// PredictGraph builds the inference graph: same model, but outputs the
// positive-sentiment probability instead of logits.
func PredictGraph(ctx *context.Context, tokens *Node) *Node {
	logits := SentimentGraph(ctx, nil, []*Node{tokens})[0]
	return Sigmoid(logits)
}
