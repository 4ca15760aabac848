// Package corpus downloads and prepares the IMDB Dataset of 50k Movie Reviews
// as pre-tokenized integer sequences with binary sentiment labels.
//
// Reviews are tokenized once, the vocabulary is frequency-sorted with ids
// 0..2 reserved (padding, sequence start, out-of-vocabulary), and the parsed
// form is cached in a binary file so later runs skip the parsing.
package corpus

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"

	"github.com/yarjanlou/sentiment-analysis/encoder"
)

const (
	DownloadURL  = "https://ai.stanford.edu/~amaas/data/sentiment/aclImdb_v1.tar.gz"
	LocalTarFile = "aclImdb_v1.tar.gz"
	TarHash      = "c40f74a18d3b61f90feba1e17730e0d38e8b97c05fde7008942e91923d1658fe"
	LocalDir     = "aclImdb"
	BinaryFile   = "aclImdb.bin"

	// binaryFormatVersion invalidates cached binary files when the parsing
	// rules change.
	binaryFormatVersion = 1
)

// reWords captures what is considered a token. Tokens are lower-cased.
var reWords = regexp.MustCompile("[[:word:]]+")

// SetType refers to either the train or test partition of the corpus.
type SetType int

const (
	Train SetType = iota
	Test
)

// Example holds one tokenized review.
//
//   - Set is the partition (train or test) the review came from.
//   - Label is 0 for negative and 1 for positive reviews.
//   - Rating is the 1-10 star rating encoded in the review's file name.
//   - Content holds the token ids, using the full (uncapped) vocabulary.
type Example struct {
	Set     SetType
	Label   int8
	Rating  int
	Content []int32
}

// Corpus is the parsed dataset: the vocabulary and every labeled example.
// It is owned by the caller and read-only after Download returns it.
type Corpus struct {
	Vocab    *Vocab
	Examples []*Example
}

// Download the IMDB reviews dataset to baseDir, un-tar it, parse all
// individual review files and save the binary cached version.
//
// If it was already downloaded and parsed, it simply loads the binary cache.
// Any failure is fatal for the run: this is a one-shot offline job, there are
// no retries.
func Download(baseDir string) (*Corpus, error) {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	c, err := loadBinary(baseDir)
	if err != nil {
		return nil, err
	}
	if c != nil {
		fmt.Printf("Loaded data from %q: %d examples, %d unique tokens, %d tokens in total.\n",
			BinaryFile, len(c.Examples), c.Vocab.Size(), c.Vocab.TotalCount)
		return c, nil
	}

	if err := downloadAndUntarIfMissing(DownloadURL, baseDir, LocalTarFile, LocalDir, TarHash); err != nil {
		return nil, errors.WithMessage(err, "corpus.Download failed")
	}
	c, err = parseIndividualFiles(baseDir)
	if err != nil {
		return nil, err
	}
	if err := c.saveBinary(baseDir); err != nil {
		return nil, err
	}
	return c, nil
}

// loadBinary returns the cached corpus, or nil if there is no usable cache.
func loadBinary(baseDir string) (*Corpus, error) {
	f, err := os.Open(path.Join(baseDir, BinaryFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed loadBinary(%q) while opening file", BinaryFile)
	}
	defer func() { _ = f.Close() }()

	dec := gob.NewDecoder(f)
	var version int
	if err := dec.Decode(&version); err != nil {
		return nil, errors.Wrapf(err, "failed loadBinary(%q) while reading", BinaryFile)
	}
	if version != binaryFormatVersion {
		// Format changed, force regeneration.
		return nil, nil
	}

	fmt.Println("> Loading previously generated preprocessed binary file.")
	c := &Corpus{}
	if err := dec.Decode(&c.Vocab); err != nil {
		return nil, errors.Wrapf(err, "failed loadBinary(%q) while reading", BinaryFile)
	}
	if err := dec.Decode(&c.Examples); err != nil {
		return nil, errors.Wrapf(err, "failed loadBinary(%q) while reading", BinaryFile)
	}
	return c, nil
}

func (c *Corpus) saveBinary(baseDir string) error {
	fmt.Println("> Saving preprocessed binary file.")
	f, err := os.Create(path.Join(baseDir, BinaryFile))
	if err != nil {
		return errors.Wrapf(err, "failed to saveBinary(%q)", BinaryFile)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(binaryFormatVersion); err != nil {
		return errors.Wrapf(err, "failed saveBinary(%q) while writing", BinaryFile)
	}
	if err := enc.Encode(c.Vocab); err != nil {
		return errors.Wrapf(err, "failed saveBinary(%q) while writing", BinaryFile)
	}
	if err := enc.Encode(c.Examples); err != nil {
		return errors.Wrapf(err, "failed saveBinary(%q) while writing", BinaryFile)
	}

	err = f.Close()
	closed = true
	return err
}

// tokenize parses one review's contents, registering tokens in vocab and
// returning the token ids. Line-break markers are dropped, tokens are
// lower-cased words.
func tokenize(contents []byte, vocab *Vocab) []int32 {
	contents = bytes.ReplaceAll(contents, []byte("<br />"), []byte(" "))
	partsIndices := reWords.FindAllIndex(contents, -1)
	ids := make([]int32, 0, len(partsIndices))
	for _, span := range partsIndices {
		token := strings.ToLower(string(contents[span[0]:span[1]]))
		ids = append(ids, int32(vocab.RegisterToken(token)))
	}
	return ids
}

// parseIndividualFiles reads every labeled review file of the un-tar'ed
// dataset, building the vocabulary as it goes. After all files are parsed the
// token ids are re-assigned by corpus frequency.
func parseIndividualFiles(baseDir string) (*Corpus, error) {
	c := &Corpus{Vocab: NewVocab()}
	for setIdx, setDir := range []string{"train", "test"} {
		for label, sliceDir := range []string{"neg", "pos"} {
			dir := path.Join(baseDir, LocalDir, setDir, sliceDir)
			files, err := os.ReadDir(dir)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read examples from %s", dir)
			}
			for _, f := range files {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".txt") {
					continue
				}

				// The review's star rating is the file name suffix: "<id>_<rating>.txt".
				var rating int
				name := strings.TrimSuffix(f.Name(), ".txt")
				if parts := strings.Split(name, "_"); len(parts) == 2 {
					// If conversion fails we keep a 0 rating.
					rating, _ = strconv.Atoi(parts[1])
				}

				contents, err := os.ReadFile(path.Join(dir, f.Name()))
				if err != nil {
					return nil, errors.Wrapf(err, "failed to read example %s from %s", f.Name(), dir)
				}
				c.Examples = append(c.Examples, &Example{
					Set:     SetType(setIdx),
					Label:   int8(label),
					Rating:  rating,
					Content: tokenize(contents, c.Vocab),
				})
			}
		}
	}

	// Re-assign token ids by their frequencies.
	oldIDToNewID := c.Vocab.sortByFrequency()
	for _, e := range c.Examples {
		for ii, oldID := range e.Content {
			e.Content[ii] = int32(oldIDToNewID[int(oldID)])
		}
	}
	return c, nil
}

// Load returns the train and test partitions capped to the given vocabulary
// size. See Partition for the encoding applied.
func (c *Corpus) Load(numWords int) (trainSeqs [][]int32, trainLabels []int8, testSeqs [][]int32, testLabels []int8, err error) {
	trainSeqs, trainLabels, err = c.Partition(Train, numWords)
	if err != nil {
		return
	}
	testSeqs, testLabels, err = c.Partition(Test, numWords)
	return
}

// Partition returns the token sequences and labels of one partition, capped to
// the given vocabulary size: ids >= numWords are mapped to the OOV id and the
// sequence-start marker is prepended, matching the encoding contract described
// by the exported metadata bundle.
func (c *Corpus) Partition(set SetType, numWords int) (seqs [][]int32, labels []int8, err error) {
	if numWords <= encoder.IndexFrom {
		return nil, nil, errors.Errorf("numWords=%d leaves no room for real tokens (they start at id %d)",
			numWords, encoder.IndexFrom)
	}
	if numWords > c.Vocab.Size() {
		return nil, nil, errors.Errorf("numWords=%d is larger than the corpus vocabulary (%d tokens)",
			numWords, c.Vocab.Size())
	}
	for _, e := range c.Examples {
		if e.Set != set {
			continue
		}
		seq := make([]int32, 0, len(e.Content)+1)
		seq = append(seq, encoder.StartID)
		for _, id := range e.Content {
			if id >= int32(numWords) {
				id = encoder.OovID
			}
			seq = append(seq, id)
		}
		seqs = append(seqs, seq)
		labels = append(labels, e.Label)
	}
	return seqs, labels, nil
}
