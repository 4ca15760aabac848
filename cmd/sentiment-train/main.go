// Trains the IMDB binary sentiment classifier and exports its artifacts:
// native checkpoint, cross-runtime weights directory, vocabulary and
// preprocessing metadata.
//
// Hyperparameters can be set with --set, e.g.:
//
//	sentiment-train --set="epochs=3;batch_size=128"
package main

import (
	"flag"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/yarjanlou/sentiment-analysis/export"
	"github.com/yarjanlou/sentiment-analysis/model"
	"github.com/yarjanlou/sentiment-analysis/trainer"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir    = flag.String("data", "~/tmp/sentiment-analysis", "Directory to cache downloaded and generated dataset files.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save and load checkpoints from during training. If left empty, no intermediary checkpoints are created.")
	flagOutput     = flag.String("output", "", "Directory to write the trained artifacts to (checkpoint, safetensors, vocab.json, metadata.json). If left empty, nothing is exported.")
	flagEval       = flag.Bool("eval", true, "Whether to evaluate the model on the test data in the end.")
	flagVerbosity  = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := model.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	err := exceptions.TryCatch[error](func() {
		results := trainer.TrainModel(ctx, *flagDataDir, *flagCheckpoint, paramsSet, *flagEval, *flagVerbosity)
		if *flagOutput != "" {
			must.M(export.SaveArtifacts(results, *flagOutput))
		}
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
