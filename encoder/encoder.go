// Package encoder normalizes variable-length token-id sequences to the fixed
// length the model consumes, and defines the preprocessing metadata bundle
// that lets an external tokenizer reproduce the exact same encoding.
//
// The policy matches "post" padding and "post" truncating: sequences longer
// than maxLen keep their first maxLen tokens, shorter ones are filled at the
// tail with PadID (0).
package encoder

import (
	"github.com/gomlx/exceptions"
)

// Reserved token ids. Real vocabulary tokens start at IndexFrom.
const (
	PadID   = 0
	StartID = 1
	OovID   = 2

	// IndexFrom is the id of the most frequent vocabulary token; everything
	// below it is reserved.
	IndexFrom = 3
)

// Metadata is the binding contract between this training pipeline and any
// external tokenizer: together with vocab.json it is sufficient to reproduce
// the training-time encoding bit-exactly.
type Metadata struct {
	NumWords  int `json:"num_words"`
	MaxLen    int `json:"max_len"`
	IndexFrom int `json:"index_from"`
	PadID     int `json:"pad_id"`
	StartID   int `json:"start_id"`
	OovID     int `json:"oov_id"`
}

// NewMetadata returns the bundle for the given vocabulary cap and sequence
// length, with the fixed reserved-id layout.
func NewMetadata(numWords, maxLen int) Metadata {
	return Metadata{
		NumWords:  numWords,
		MaxLen:    maxLen,
		IndexFrom: IndexFrom,
		PadID:     PadID,
		StartID:   StartID,
		OovID:     OovID,
	}
}

// Encode returns seq normalized to exactly maxLen elements: the first maxLen
// tokens if seq is longer, otherwise seq followed by PadID fillers.
// The input is never mutated; the result is always a fresh slice.
func Encode(seq []int32, maxLen int) []int32 {
	if maxLen <= 0 {
		exceptions.Panicf("encoder.Encode: maxLen must be > 0, got %d", maxLen)
	}
	out := make([]int32, maxLen)
	copy(out, seq) // Truncates the tail if len(seq) > maxLen; rest stays PadID.
	return out
}

// EncodeAll encodes every sequence into one flat [len(seqs)*maxLen] buffer,
// row-major, ready to back a [batch, maxLen] tensor.
func EncodeAll(seqs [][]int32, maxLen int) []int32 {
	flat := make([]int32, len(seqs)*maxLen)
	for i, seq := range seqs {
		row := flat[i*maxLen : (i+1)*maxLen]
		copy(row, seq)
	}
	return flat
}

// Decode strips the tail padding from an encoded sequence using only the
// metadata bundle, recovering the original tokens (up to truncation).
//
// Note PadID may legitimately not appear at all (full-length sequences); the
// first PadID found marks the start of the padding because real token ids are
// all >= StartID.
func Decode(encoded []int32, md Metadata) []int32 {
	end := len(encoded)
	for i, id := range encoded {
		if id == int32(md.PadID) {
			end = i
			break
		}
	}
	out := make([]int32, end)
	copy(out, encoded[:end])
	return out
}
