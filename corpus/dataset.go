package corpus

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/pkg/errors"

	"github.com/yarjanlou/sentiment-analysis/encoder"
)

// NewDataset uploads one partition as a [len(seqs), maxLen] int32 inputs
// tensor plus a [len(seqs), 1] int8 labels tensor and wraps them in an
// in-memory dataset. The returned dataset is not yet shuffled nor batched;
// configure it with the usual InMemoryDataset methods.
func NewDataset(backend backends.Backend, name string, seqs [][]int32, labels []int8, maxLen int) (*datasets.InMemoryDataset, error) {
	if len(seqs) == 0 {
		return nil, errors.Errorf("dataset %q has no examples", name)
	}
	if len(seqs) != len(labels) {
		return nil, errors.Errorf("dataset %q: %d sequences but %d labels", name, len(seqs), len(labels))
	}
	inputs := tensors.FromFlatDataAndDimensions(encoder.EncodeAll(seqs, maxLen), len(seqs), maxLen)
	labelsT := tensors.FromFlatDataAndDimensions(labels, len(labels), 1)
	ds, err := datasets.InMemoryFromData(backend, name, []any{inputs}, []any{labelsT})
	if err != nil {
		return nil, errors.WithMessagef(err, "building in-memory dataset %q", name)
	}
	return ds, nil
}

// SplitTrainValidation splits the sequences into a training and a validation
// part, the validation part holding valFraction of the examples. The split is
// drawn once from the given random source and stays fixed for the whole run.
func SplitTrainValidation(seqs [][]int32, labels []int8, valFraction float64, rng *rand.Rand) (
	trainSeqs [][]int32, trainLabels []int8, valSeqs [][]int32, valLabels []int8) {
	perm := rng.Perm(len(seqs))
	numVal := int(float64(len(seqs)) * valFraction)
	for ii, idx := range perm {
		if ii < numVal {
			valSeqs = append(valSeqs, seqs[idx])
			valLabels = append(valLabels, labels[idx])
		} else {
			trainSeqs = append(trainSeqs, seqs[idx])
			trainLabels = append(trainLabels, labels[idx])
		}
	}
	return
}

// SequenceToString renders an encoded sequence back to words, skipping
// padding. Used for debugging and sample printing.
func (c *Corpus) SequenceToString(seq []int32) string {
	parts := make([]string, 0, len(seq))
	for _, id := range seq {
		if id == encoder.PadID {
			continue
		}
		parts = append(parts, c.Vocab.Token(int(id)))
	}
	return strings.Join(parts, " ")
}

var sampleStyle = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder()).
	Padding(1, 4, 1, 4).
	Width(60)

// PrintSample renders n random test reviews with their labels.
func (c *Corpus) PrintSample(n, numWords, maxLen int, rng *rand.Rand) error {
	seqs, labels, err := c.Partition(Test, numWords)
	if err != nil {
		return err
	}
	for ii := range n {
		idx := rng.Intn(len(seqs))
		encoded := encoder.Encode(seqs[idx], maxLen)
		fmt.Println(sampleStyle.Render(
			fmt.Sprintf("[Sample %d - label %d]\n%s\n", ii, labels[idx], c.SequenceToString(encoded))))
	}
	fmt.Println()
	return nil
}
