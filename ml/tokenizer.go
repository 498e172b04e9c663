package ml

// Padding selects how encoded sequences are padded.
type Padding string

const (
	PaddingNone      Padding = ""
	PaddingLongest   Padding = "longest"
	PaddingMaxLength Padding = "max_length"
)

// TokenizeOptions mirrors the fixed options the data pipeline passes to
// tokenizers.
type TokenizeOptions struct {
	Padding    Padding
	Truncation bool
	MaxLength  int

	ReturnAttentionMask bool
	ReturnTokenTypeIDs  bool
}

// Tokenizer turns a batch of texts into token id sequences.
type Tokenizer interface {
	Encode(texts []string, opts TokenizeOptions) ([][]int32, error)
}
