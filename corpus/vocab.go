package corpus

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/yarjanlou/sentiment-analysis/encoder"
)

// Surface forms of the reserved token ids. They never appear in review text
// (the tokenizer only emits word characters) so they cannot collide with real
// tokens.
const (
	PadToken   = "<PAD>"
	StartToken = "<START>"
	OovToken   = "<OOV>"
)

// VocabEntry holds one token and its corpus frequency.
type VocabEntry struct {
	Token string
	Count int
}

// Vocab stores vocabulary information for the whole corpus.
//
// Ids 0, 1 and 2 are reserved for padding, sequence start and out-of-vocabulary
// respectively; real tokens start at encoder.IndexFrom (3), ordered by corpus
// frequency (most frequent first). The vocabulary is immutable after the
// corpus finishes loading.
type Vocab struct {
	// ListEntries is indexed by token id.
	ListEntries []VocabEntry

	// MapTokens maps a token to its id.
	MapTokens map[string]int

	// TotalCount of tokens registered, including repetitions.
	TotalCount int
}

// NewVocab creates a vocabulary seeded with the reserved tokens, so the first
// real token registered gets id encoder.IndexFrom.
func NewVocab() *Vocab {
	v := &Vocab{
		MapTokens: make(map[string]int),
		ListEntries: []VocabEntry{
			{PadToken, 0}, {StartToken, 0}, {OovToken, 0}},
	}
	for ii, entry := range v.ListEntries {
		v.MapTokens[entry.Token] = ii
	}
	return v
}

// RegisterToken returns the id for the token, registering it and incrementing
// its count. Only used while parsing the corpus; afterwards the vocabulary is
// read-only.
func (v *Vocab) RegisterToken(token string) (id int) {
	v.TotalCount++
	var found bool
	id, found = v.MapTokens[token]
	if !found {
		id = len(v.ListEntries)
		v.MapTokens[token] = id
		v.ListEntries = append(v.ListEntries, VocabEntry{token, 1})
	} else {
		v.ListEntries[id].Count++
	}
	return id
}

// sortByFrequency sorts the vocabulary entries by their frequency, so the most
// frequent token gets id encoder.IndexFrom. It returns a map to convert token
// ids from before the sorting to their new values. Reserved ids are unchanged.
func (v *Vocab) sortByFrequency() (oldIDtoNewID map[int]int) {
	subSlice := v.ListEntries[encoder.IndexFrom:]
	sort.Slice(subSlice, func(i, j int) bool {
		return subSlice[i].Count > subSlice[j].Count
	})

	newMapTokens := make(map[string]int, len(v.MapTokens))
	for ii, entry := range v.ListEntries {
		newMapTokens[entry.Token] = ii
	}
	oldIDtoNewID = make(map[int]int, len(v.MapTokens))
	for token, oldID := range v.MapTokens {
		oldIDtoNewID[oldID] = newMapTokens[token]
	}
	v.MapTokens = newMapTokens
	return
}

// Size returns the number of distinct ids, reserved ones included.
func (v *Vocab) Size() int { return len(v.ListEntries) }

// ID returns the id for token, or encoder.OovID if it is not in the
// vocabulary.
func (v *Vocab) ID(token string) int {
	id, found := v.MapTokens[token]
	if !found {
		return encoder.OovID
	}
	return id
}

// Token returns the surface form for the given id.
func (v *Vocab) Token(id int) string {
	if id < 0 || id >= len(v.ListEntries) {
		return OovToken
	}
	return v.ListEntries[id].Token
}

// Trimmed returns the token→id mapping restricted to real tokens with ids
// strictly below numWords -- the mapping exported as vocab.json. Reserved ids
// (0, 1, 2) are never included.
func (v *Vocab) Trimmed(numWords int) (map[string]int, error) {
	if numWords <= encoder.IndexFrom {
		return nil, errors.Errorf("vocabulary cap numWords=%d leaves no room for real tokens (they start at id %d)",
			numWords, encoder.IndexFrom)
	}
	if numWords > v.Size() {
		return nil, errors.Errorf("vocabulary cap numWords=%d is larger than the %d tokens available",
			numWords, v.Size())
	}
	trimmed := make(map[string]int, numWords-encoder.IndexFrom)
	for id := encoder.IndexFrom; id < numWords; id++ {
		trimmed[v.ListEntries[id].Token] = id
	}
	return trimmed, nil
}
