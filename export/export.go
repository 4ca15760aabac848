// Package export writes the artifacts of a training run: the native
// checkpoint (verified with a save/reload round-trip), a cross-runtime
// weights directory (safetensors plus a graph description), and the
// vocabulary and preprocessing metadata an independent tokenizer needs to
// reproduce the training-time encoding.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/pkg/errors"

	"github.com/yarjanlou/sentiment-analysis/corpus"
	"github.com/yarjanlou/sentiment-analysis/encoder"
	"github.com/yarjanlou/sentiment-analysis/model"
	"github.com/yarjanlou/sentiment-analysis/trainer"
)

const (
	// CheckpointDir under the output directory holding the native checkpoint.
	CheckpointDir = "checkpoint"

	// GraphDir under the output directory holding the cross-runtime files.
	GraphDir = "graph"

	// probeBatchSize is the number of test examples used to verify the
	// checkpoint reload reproduces the live model's predictions.
	probeBatchSize = 16

	// probeTolerance is the maximum absolute difference allowed between live
	// and reloaded predictions.
	probeTolerance = 1e-4
)

// SaveArtifacts writes every artifact of the run to outputDir: the native
// checkpoint (reload-verified), the cross-runtime graph directory, vocab.json
// and metadata.json. Each artifact writes to its own path, so a failure in
// one cannot corrupt the others.
func SaveArtifacts(results *trainer.Results, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", outputDir)
	}
	numWords := context.GetParamOr(results.Context, model.ParamNumWords, 20_000)
	maxLen := context.GetParamOr(results.Context, model.ParamMaxLen, 200)

	probe, err := probeBatch(results.Corpus, numWords, maxLen)
	if err != nil {
		return err
	}
	if err := saveCheckpoint(results, probe, path.Join(outputDir, CheckpointDir)); err != nil {
		return err
	}
	if err := saveGraphDir(results, path.Join(outputDir, GraphDir)); err != nil {
		return err
	}
	if err := saveVocab(results.Corpus.Vocab, numWords, path.Join(outputDir, "vocab.json")); err != nil {
		return err
	}
	return saveMetadata(numWords, maxLen, path.Join(outputDir, "metadata.json"))
}

// probeBatch encodes the first test examples into a tensor used to compare
// live and reloaded predictions.
func probeBatch(c *corpus.Corpus, numWords, maxLen int) (*tensors.Tensor, error) {
	seqs, _, err := c.Partition(corpus.Test, numWords)
	if err != nil {
		return nil, err
	}
	if len(seqs) > probeBatchSize {
		seqs = seqs[:probeBatchSize]
	}
	return tensors.FromFlatDataAndDimensions(encoder.EncodeAll(seqs, maxLen), len(seqs), maxLen), nil
}

// saveCheckpoint writes the native checkpoint and verifies it: the checkpoint
// is reloaded into a fresh context and its predictions on the probe batch are
// compared to the live model's. The reloaded context and its executable are
// discarded when the verification finishes, whether it succeeds or not.
func saveCheckpoint(results *trainer.Results, probe *tensors.Tensor, dir string) error {
	handler, err := checkpoints.Build(results.Context).Dir(dir).Keep(1).Done()
	if err != nil {
		return errors.WithMessagef(err, "creating checkpoint in %q", dir)
	}
	if err := handler.Save(); err != nil {
		return errors.WithMessagef(err, "saving checkpoint to %q", dir)
	}

	livePredictions, err := predict(results, results.Context, probe)
	if err != nil {
		return errors.WithMessage(err, "running live model on probe batch")
	}

	// Reload into a fresh context and compare.
	freshCtx := context.New()
	if _, err := checkpoints.Load(freshCtx).Dir(dir).Done(); err != nil {
		return errors.WithMessagef(err, "reloading checkpoint from %q", dir)
	}
	reloadedPredictions, err := predict(results, freshCtx.In("model"), probe)
	if err != nil {
		return errors.WithMessage(err, "running reloaded model on probe batch")
	}

	for ii, want := range livePredictions {
		got := reloadedPredictions[ii]
		diff := want - got
		if diff < 0 {
			diff = -diff
		}
		if diff > probeTolerance {
			return errors.Errorf(
				"checkpoint verification failed: probe example %d predicts %.6f live but %.6f after reload",
				ii, want, got)
		}
	}
	fmt.Printf("Checkpoint verified: %d probe predictions match within %g.\n", len(livePredictions), probeTolerance)
	return nil
}

// predict runs the inference graph on the probe batch with the variables held
// by ctx and returns the probabilities. The executable is released before
// returning.
func predict(results *trainer.Results, ctx *context.Context, probe *tensors.Tensor) (predictions []float32, err error) {
	exec, err := context.NewExec(results.Backend, ctx.Reuse(), model.PredictGraph)
	if err != nil {
		return nil, err
	}
	defer exec.Finalize()
	outputs, err := exec.Exec(probe)
	if err != nil {
		return nil, err
	}
	tensors.MustConstFlatData[float32](outputs[0], func(values []float32) {
		predictions = append(predictions, values...)
	})
	return predictions, nil
}

// saveGraphDir writes the cross-runtime artifacts into a freshly created dir:
// model.safetensors with the weights and graph.json with the layer stack, so
// an independent runtime can rebuild the graph and load the weights.
func saveGraphDir(results *trainer.Results, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to clear graph directory %q", dir)
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create graph directory %q", dir)
	}

	ctx := results.Context
	metadata := map[string]string{
		"format":  "sentiment-analysis",
		"version": "1",
	}
	if err := writeSafetensors(path.Join(dir, "model.safetensors"), ctx, metadata); err != nil {
		return err
	}
	return writeGraphJSON(ctx, path.Join(dir, "graph.json"))
}

// saveVocab writes the token to id mapping restricted to the ids the model
// was trained with. Reserved ids are never exported, they are described by
// metadata.json instead.
func saveVocab(v *corpus.Vocab, numWords int, filePath string) error {
	trimmed, err := v.Trimmed(numWords)
	if err != nil {
		return err
	}
	return writeJSON(filePath, trimmed)
}

// saveMetadata writes the encoding contract of the trained model.
func saveMetadata(numWords, maxLen int, filePath string) error {
	return writeJSON(filePath, encoder.NewMetadata(numWords, maxLen))
}

func writeJSON(filePath string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %q", filePath)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", filePath)
	}
	return nil
}
