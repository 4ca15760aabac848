package main

import (
	"os"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/yarjanlou/sentiment-analysis/model"
	"github.com/yarjanlou/sentiment-analysis/trainer"
)

var (
	flagSettings *string
	muTrain      sync.Mutex
)

func init() {
	ctx := model.CreateDefaultContext()
	flagSettings = commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	if _, found := os.LookupEnv(backends.ConfigEnvVar); !found {
		// For testing, we use the CPU backend (and avoid GPU if not explicitly requested).
		must.M(os.Setenv(backends.ConfigEnvVar, "xla:cpu"))
	}
}

// TestTrain runs a heavily scaled down training: it still downloads and
// parses the full dataset on the first run.
func TestTrain(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}

	ctx := model.CreateDefaultContext()
	ctx.SetParams(map[string]any{
		model.ParamEpochs:     1,
		model.ParamEmbedDim:   8,
		model.ParamMaxLen:     32,
		model.ParamLSTMHidden: 4,
		model.ParamBatchSize:  32,
	})
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *flagSettings))

	muTrain.Lock()
	defer muTrain.Unlock()
	require.NotPanics(t, func() {
		trainer.TrainModel(ctx, *flagDataDir, *flagCheckpoint, paramsSet, *flagEval, *flagVerbosity)
	})
}
