// Package trainer orchestrates training of the sentiment classifier: dataset
// preparation, the epoch loop with per-epoch validation, learning rate decay
// on validation loss plateaus and the final test set evaluation.
package trainer

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"

	"github.com/yarjanlou/sentiment-analysis/corpus"
	"github.com/yarjanlou/sentiment-analysis/model"
)

// validationFraction of the training partition held out for per-epoch
// validation. The split is drawn once per run and fixed for all epochs.
const validationFraction = 0.2

// ParamsExcludedFromLoading is the list of parameters that shouldn't be saved
// along on the models checkpoints, and may be overwritten in further training
// sessions.
var ParamsExcludedFromLoading = []string{
	"data_dir", "num_checkpoints",
}

// Results of a training run, used by the artifacts exporter.
type Results struct {
	Backend backends.Backend
	Context *context.Context

	// Corpus used for training, with its full vocabulary.
	Corpus *corpus.Corpus

	// Checkpoint handler, nil if no checkpoint directory was given.
	Checkpoint *checkpoints.Handler
}

// TrainModel trains the sentiment classifier with hyperparameters given in
// ctx. Any failure panics: training is a one-shot offline job, there are no
// retries.
//
// It returns the trained state for the artifacts exporter.
func TrainModel(
	ctx *context.Context,
	dataDir, checkpointPath string,
	paramsSet []string,
	evaluateOnEnd bool,
	verbosity int,
) *Results {
	// Data directory: dataset cache and top-level directory holding checkpoints.
	dataDir = fsutil.MustReplaceTildeInDir(dataDir)
	if !fsutil.MustFileExists(dataDir) {
		must.M(os.MkdirAll(dataDir, 0777))
	}
	c := must.M1(corpus.Download(dataDir))

	// Backend handles creation of ML computation graphs, accelerator resources, etc.
	backend := backends.MustNew()
	if verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	batchSize := context.GetParamOr(ctx, model.ParamBatchSize, 0)
	if batchSize <= 0 {
		exceptions.Panicf("batch size must be > 0 (maybe it was not set?): %d", batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, model.ParamEvalBatchSize, 0)
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	numWords := context.GetParamOr(ctx, model.ParamNumWords, 20_000)
	maxLen := context.GetParamOr(ctx, model.ParamMaxLen, 200)

	// Hold out part of the training partition for per-epoch validation.
	seqs, labels, testSeqs, testLabels, err := c.Load(numWords)
	must.M(err)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if verbosity >= 2 {
		must.M(c.PrintSample(3, numWords, maxLen, rng))
	}
	trainSeqs, trainLabels, valSeqs, valLabels := corpus.SplitTrainValidation(seqs, labels, validationFraction, rng)

	baseTrain := must.M1(corpus.NewDataset(backend, "train", trainSeqs, trainLabels, maxLen))
	trainDS := baseTrain.Copy().BatchSize(batchSize, true).Shuffle().Infinite(true)
	trainEvalDS := baseTrain.BatchSize(evalBatchSize, false)
	valEvalDS := must.M1(corpus.NewDataset(backend, "validation", valSeqs, valLabels, maxLen)).
		BatchSize(evalBatchSize, false)
	testEvalDS := must.M1(corpus.NewDataset(backend, "test", testSeqs, testLabels, maxLen)).
		BatchSize(evalBatchSize, false)

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, dataDir).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromLoading...)...).
			Done())
		fmt.Printf("Checkpoint: %q\n", checkpoint.Dir())
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	// Metrics we are interested.
	meanAccuracyMetric := metrics.NewMeanBinaryLogitsAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageBinaryLogitsAccuracy("Moving Average Accuracy", "~acc", 0.01)

	// Create a train.Trainer: this object will orchestrate running the model,
	// feeding results to the optimizer and evaluating the metrics.
	ctx = ctx.In("model") // Convention scope used for model creation.
	trainer := train.NewTrainer(backend, ctx, model.SentimentGraph,
		losses.BinaryCrossentropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	loop := train.NewLoop(trainer)
	if verbosity >= 0 {
		commandline.AttachProgressBar(loop)
	}

	// Checkpoint saving: every 3 minutes of training.
	if checkpoint != nil {
		period := time.Minute * 3
		train.PeriodicCallback(loop, period, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	// The learning rate lives in a context variable read by the optimizer at
	// every step, so updating the variable between epochs takes effect
	// immediately.
	learningRate := context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.001)
	lrVar := optimizers.LearningRateVar(ctx, model.DType, learningRate)
	plateau := NewPlateau(
		context.GetParamOr(ctx, model.ParamPlateauFactor, 0.5),
		context.GetParamOr(ctx, model.ParamPlateauPatience, 2),
		context.GetParamOr(ctx, model.ParamMinLearningRate, 0.0001))

	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}

	// Epoch loop: train for one pass over the training split, then measure the
	// validation loss and decay the learning rate if it plateaued.
	numEpochs := context.GetParamOr(ctx, model.ParamEpochs, 15)
	stepsPerEpoch := len(trainSeqs) / batchSize
	for epoch := range numEpochs {
		_ = must.M1(loop.RunSteps(trainDS, stepsPerEpoch))

		// Batch normalization averages are updated before any evaluation.
		_ = must.M1(batchnorm.UpdateAverages(trainer, trainEvalDS))

		valLoss := evalLoss(trainer, valEvalDS)
		newLR := plateau.Step(valLoss, learningRate)
		if verbosity >= 1 {
			fmt.Printf("Epoch %d/%d: validation loss %.4f, learning rate %.6f\n",
				epoch+1, numEpochs, valLoss, newLR)
		}
		if newLR != learningRate {
			learningRate = newLR
			must.M(lrVar.SetValue(tensors.FromScalar(float32(learningRate))))
		}
		if checkpoint != nil {
			must.M(checkpoint.Save())
		}
	}
	if verbosity >= 1 {
		fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
			loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
	}

	// Finally, print an evaluation on train, validation and test datasets.
	if evaluateOnEnd {
		if verbosity >= 1 {
			fmt.Println()
		}
		must.M(commandline.ReportEval(trainer, trainEvalDS, valEvalDS, testEvalDS))
	}

	return &Results{
		Backend:    backend,
		Context:    ctx,
		Corpus:     c,
		Checkpoint: checkpoint,
	}
}

// evalLoss runs an evaluation pass over ds and returns its mean loss.
func evalLoss(trainer *train.Trainer, ds train.Dataset) float64 {
	values := must.M1(trainer.Eval(ds))
	ds.Reset()
	for ii, metric := range trainer.EvalMetrics() {
		if metric.MetricType() == metrics.LossMetricType {
			return float64(tensors.ToScalar[float32](values[ii]))
		}
	}
	exceptions.Panicf("no loss metric found among the trainer evaluation metrics")
	return 0
}
