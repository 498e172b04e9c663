// tokenizer.go - Hash-basierter Tokenizer fuer Code-Snippets
//
// Dieses Modul enthaelt:
// - Hash: Tokenizer mit Regex-Pretokenisierung und FNV-Hashing auf ein festes Vokabular
// - Encode: Batch-Encoding mit Truncation und Padding (longest / max_length)
// - Reservierte IDs fuer Padding, CLS und SEP
package tokenizer

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/dlclark/regexp2"

	"github.com/cortml/cort/ml"
)

// Reservierte Token-IDs. Alle gehashten Tokens liegen oberhalb von numReserved.
const (
	PadID int32 = iota
	ClsID
	SepID

	numReserved = 3
)

// DefaultPattern trennt Woerter, Zahlen, Satzzeichen und Whitespace
const DefaultPattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

var errEmptyVocab = errors.New("tokenizer: vocabulary must hold more than the reserved ids")

// Hash bildet Pretokens per FNV-1a auf [numReserved, vocabSize) ab.
// Ein Hash ist nach der Konstruktion unveraenderlich und nebenlaeufig nutzbar.
type Hash struct {
	vocabSize int
	pre       *regexp2.Regexp
}

// NewHash erstellt einen Tokenizer fuer vocabSize IDs
func NewHash(vocabSize int) (*Hash, error) {
	return NewHashWithPattern(vocabSize, DefaultPattern)
}

// NewHashWithPattern erstellt einen Tokenizer mit eigenem Pretokenizer-Muster
func NewHashWithPattern(vocabSize int, pattern string) (*Hash, error) {
	if vocabSize <= numReserved {
		return nil, errEmptyVocab
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: invalid pattern: %w", err)
	}

	return &Hash{vocabSize: vocabSize, pre: re}, nil
}

// VocabSize gibt die Groesse des Vokabulars zurueck
func (h *Hash) VocabSize() int {
	return h.vocabSize
}

// split zerlegt s in Pretokens
func (h *Hash) split(s string) ([]string, error) {
	var out []string
	m, err := h.pre.FindStringMatch(s)
	for m != nil && err == nil {
		out = append(out, m.String())
		m, err = h.pre.FindNextMatch(m)
	}

	return out, err
}

func (h *Hash) id(piece string) int32 {
	f := fnv.New32a()
	f.Write([]byte(piece))
	return int32(f.Sum32()%uint32(h.vocabSize-numReserved)) + numReserved
}

// encodeOne liefert [CLS] tokens... [SEP] ohne Padding
func (h *Hash) encodeOne(text string, opts ml.TokenizeOptions) ([]int32, error) {
	pieces, err := h.split(text)
	if err != nil {
		return nil, err
	}

	ids := make([]int32, 0, len(pieces)+2)
	ids = append(ids, ClsID)
	for _, p := range pieces {
		ids = append(ids, h.id(p))
	}

	// CLS und SEP bleiben bei der Truncation immer erhalten
	if opts.Truncation && opts.MaxLength >= 2 && len(ids) >= opts.MaxLength {
		ids = ids[:opts.MaxLength-1]
	}

	return append(ids, SepID), nil
}

// Encode tokenisiert texts. Bei PaddingLongest werden alle Sequenzen auf die
// laengste im Batch aufgefuellt, bei PaddingMaxLength auf opts.MaxLength.
func (h *Hash) Encode(texts []string, opts ml.TokenizeOptions) ([][]int32, error) {
	out := make([][]int32, len(texts))
	longest := 0
	for i, text := range texts {
		ids, err := h.encodeOne(text, opts)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: text %d: %w", i, err)
		}

		out[i] = ids
		longest = max(longest, len(ids))
	}

	var width int
	switch opts.Padding {
	case ml.PaddingNone:
		return out, nil
	case ml.PaddingLongest:
		width = longest
	case ml.PaddingMaxLength:
		if opts.MaxLength <= 0 {
			return nil, errors.New("tokenizer: max_length padding requires MaxLength")
		}
		width = max(opts.MaxLength, longest)
	default:
		return nil, fmt.Errorf("tokenizer: unknown padding %q", opts.Padding)
	}

	for i, ids := range out {
		if len(ids) < width {
			padded := make([]int32, width)
			copy(padded, ids)
			out[i] = padded
		}
	}

	return out, nil
}
