package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarjanlou/sentiment-analysis/encoder"
)

func TestTokenize(t *testing.T) {
	v := NewVocab()
	ids := tokenize([]byte("Great movie!<br /><br />GREAT cast."), v)
	require.Len(t, ids, 4)
	assert.Equal(t, ids[0], ids[2], "tokens are lower-cased before lookup")
	assert.Equal(t, "great", v.Token(int(ids[0])))
	assert.Equal(t, "movie", v.Token(int(ids[1])))
	assert.Equal(t, "cast", v.Token(int(ids[3])))
	// The line-break markup never becomes a token.
	assert.Equal(t, int(encoder.OovID), v.ID("br"))
}

// testCorpus builds a tiny corpus by hand, with token ids already
// frequency-sorted the way parseIndividualFiles leaves them.
func testCorpus() *Corpus {
	c := &Corpus{Vocab: NewVocab()}
	text := [][]string{
		{"the", "movie", "was", "great"},
		{"the", "movie", "was", "awful"},
		{"the", "the", "the"},
	}
	sets := []SetType{Train, Train, Test}
	labelValues := []int8{1, 0, 1}
	for ii, words := range text {
		e := &Example{Set: sets[ii], Label: labelValues[ii], Rating: 7}
		for _, w := range words {
			e.Content = append(e.Content, int32(c.Vocab.RegisterToken(w)))
		}
		c.Examples = append(c.Examples, e)
	}
	oldToNew := c.Vocab.sortByFrequency()
	for _, e := range c.Examples {
		for ii, id := range e.Content {
			e.Content[ii] = int32(oldToNew[int(id)])
		}
	}
	return c
}

func TestPartition(t *testing.T) {
	c := testCorpus()
	numWords := encoder.IndexFrom + 2 // Keeps only "the" and one more token.
	seqs, labelValues, err := c.Partition(Train, numWords)
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, []int8{1, 0}, labelValues)

	theID := int32(c.Vocab.ID("the"))
	require.Less(t, theID, int32(numWords))
	for _, seq := range seqs {
		assert.Equal(t, int32(encoder.StartID), seq[0], "sequences start with the start-of-sequence marker")
		for _, id := range seq[1:] {
			assert.Less(t, id, int32(numWords), "ids above the cap must be replaced by the OOV id")
		}
	}
	// "great" and "awful" appear once each, above the cap.
	assert.Equal(t, int32(encoder.OovID), seqs[0][len(seqs[0])-1])

	_, _, err = c.Partition(Train, encoder.IndexFrom)
	assert.Error(t, err)
	_, _, err = c.Partition(Train, c.Vocab.Size()+1)
	assert.Error(t, err)
}

func TestSplitTrainValidation(t *testing.T) {
	seqs := make([][]int32, 10)
	labelValues := make([]int8, 10)
	for ii := range seqs {
		seqs[ii] = []int32{int32(ii)}
		labelValues[ii] = int8(ii % 2)
	}
	trainSeqs, trainLabels, valSeqs, valLabels := SplitTrainValidation(seqs, labelValues, 0.2, rand.New(rand.NewSource(42)))
	assert.Len(t, trainSeqs, 8)
	assert.Len(t, valSeqs, 2)
	require.Len(t, trainLabels, 8)
	require.Len(t, valLabels, 2)

	// Every example lands in exactly one side, labels still paired up.
	seen := make(map[int32]bool)
	check := func(s [][]int32, l []int8) {
		for ii, seq := range s {
			assert.False(t, seen[seq[0]])
			seen[seq[0]] = true
			assert.Equal(t, int8(seq[0]%2), l[ii])
		}
	}
	check(trainSeqs, trainLabels)
	check(valSeqs, valLabels)
	assert.Len(t, seen, 10)
}
