package export

import (
	"github.com/gomlx/gomlx/pkg/ml/context"

	"github.com/yarjanlou/sentiment-analysis/model"
)

// graphInput describes the single input of the exported graph.
type graphInput struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	// Shape with -1 for the batch dimension.
	Shape []int `json:"shape"`
}

// graphLayer describes one layer of the exported graph. Weights lists the
// tensor names in model.safetensors the layer reads, in application order.
type graphLayer struct {
	Type       string   `json:"type"`
	Units      int      `json:"units,omitempty"`
	VocabSize  int      `json:"vocab_size,omitempty"`
	Rate       float64  `json:"rate,omitempty"`
	Activation string   `json:"activation,omitempty"`
	Weights    []string `json:"weights,omitempty"`
}

// graphConfig is the document written to graph.json: enough for an
// independent runtime to rebuild the graph and bind the safetensors weights.
type graphConfig struct {
	FormatVersion int          `json:"format_version"`
	Input         graphInput   `json:"input"`
	Output        string       `json:"output"`
	Layers        []graphLayer `json:"layers"`
}

// writeGraphJSON describes the classifier's layer stack, mirroring the graph
// built by model.SentimentGraph with the tensor names writeSafetensors emits.
func writeGraphJSON(ctx *context.Context, filePath string) error {
	numWords := context.GetParamOr(ctx, model.ParamNumWords, 20_000)
	maxLen := context.GetParamOr(ctx, model.ParamMaxLen, 200)
	embedDim := context.GetParamOr(ctx, model.ParamEmbedDim, 128)
	hiddenSize := context.GetParamOr(ctx, model.ParamLSTMHidden, 64)
	lstmDropout := context.GetParamOr(ctx, model.ParamLSTMDropout, 0.3)
	headDropout := context.GetParamOr(ctx, model.ParamHeadDropout, 0.5)

	cfg := graphConfig{
		FormatVersion: 1,
		Input: graphInput{
			Name:  "tokens",
			DType: "int32",
			Shape: []int{-1, maxLen},
		},
		Output: "probability",
		Layers: []graphLayer{
			{
				Type:      "embedding",
				VocabSize: numWords,
				Units:     embedDim,
				Weights:   []string{"embeddings.embeddings"},
			},
			{Type: "dropout", Rate: lstmDropout},
			{
				Type:    "bidirectional_lstm",
				Units:   hiddenSize,
				Weights: []string{"lstm.inputsW", "lstm.recurrentW", "lstm.biasesW"},
			},
			{
				Type:       "dense",
				Units:      64,
				Activation: "relu",
				Weights:    []string{"hidden0.dense.weights", "hidden0.dense.biases"},
			},
			{
				Type: "batch_normalization",
				Weights: []string{
					"hidden0_norm.batch_normalization.scale",
					"hidden0_norm.batch_normalization.offset",
					"hidden0_norm.batch_normalization.mean",
					"hidden0_norm.batch_normalization.variance",
				},
			},
			{Type: "dropout", Rate: headDropout},
			{
				Type:       "dense",
				Units:      32,
				Activation: "relu",
				Weights:    []string{"hidden1.dense.weights", "hidden1.dense.biases"},
			},
			{
				Type:       "dense",
				Units:      1,
				Activation: "sigmoid",
				Weights:    []string{"readout.dense.weights", "readout.dense.biases"},
			},
		},
	}
	return writeJSON(filePath, cfg)
}
