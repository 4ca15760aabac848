package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLength(t *testing.T) {
	for _, maxLen := range []int{1, 5, 200} {
		for _, seq := range [][]int32{nil, {4}, {4, 5}, {4, 5, 6, 7, 8, 9}} {
			got := Encode(seq, maxLen)
			assert.Len(t, got, maxLen, "Encode(%v, %d)", seq, maxLen)
		}
	}
}

func TestEncodePadsShortSequences(t *testing.T) {
	got := Encode([]int32{4, 5}, 5)
	assert.Equal(t, []int32{4, 5, 0, 0, 0}, got)

	// Empty sequence yields all padding.
	got = Encode(nil, 4)
	assert.Equal(t, []int32{0, 0, 0, 0}, got)
}

func TestEncodeTruncatesFromTail(t *testing.T) {
	got := Encode([]int32{4, 5, 6, 7, 8, 9}, 5)
	assert.Equal(t, []int32{4, 5, 6, 7, 8}, got, "must keep the first 5 tokens, dropping the tail")

	// Exact length is a no-op copy.
	got = Encode([]int32{4, 5, 6}, 3)
	assert.Equal(t, []int32{4, 5, 6}, got)
}

func TestEncodeIdempotent(t *testing.T) {
	for _, seq := range [][]int32{{4, 5}, {4, 5, 6, 7, 8, 9}, nil} {
		once := Encode(seq, 5)
		twice := Encode(once, 5)
		assert.Equal(t, once, twice)
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	seq := []int32{4, 5, 6, 7, 8, 9}
	_ = Encode(seq, 3)
	assert.Equal(t, []int32{4, 5, 6, 7, 8, 9}, seq)
}

func TestEncodeAll(t *testing.T) {
	flat := EncodeAll([][]int32{{4, 5}, {6, 7, 8, 9}}, 3)
	assert.Equal(t, []int32{4, 5, 0, 6, 7, 8}, flat)
}

func TestMetadataBundle(t *testing.T) {
	md := NewMetadata(10, 5)
	assert.Equal(t, 0, md.PadID)
	assert.Equal(t, 1, md.StartID)
	assert.Equal(t, 2, md.OovID)
	assert.Equal(t, 3, md.IndexFrom)
	assert.Equal(t, 10, md.NumWords)
	assert.Equal(t, 5, md.MaxLen)
}

// TestDecodeUsesOnlyMetadata checks that an external consumer holding just the
// metadata bundle can undo the encoding (up to truncation and padding).
func TestDecodeUsesOnlyMetadata(t *testing.T) {
	md := NewMetadata(10, 5)

	encoded := Encode([]int32{4, 5}, md.MaxLen)
	require.Equal(t, []int32{4, 5, 0, 0, 0}, encoded)
	assert.Equal(t, []int32{4, 5}, Decode(encoded, md))

	// Over-length sequence: decoding recovers the surviving prefix.
	encoded = Encode([]int32{4, 5, 6, 7, 8, 9}, md.MaxLen)
	assert.Equal(t, []int32{4, 5, 6, 7, 8}, Decode(encoded, md))

	// All padding decodes to empty.
	assert.Empty(t, Decode(Encode(nil, md.MaxLen), md))
}
