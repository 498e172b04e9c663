package dataset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortml/cort/tokenizer"
)

const sampleCSV = "\ufeffid,sentences,code_sections,code_labels\n" +
	"1,Return X,0,1\n" +
	"2,\"if a, b\",2,0\n" +
	"3,for i := range n,1,1\n"

func TestReadCSV(t *testing.T) {
	ex, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Equal(t, []string{"Return X", "if a, b", "for i := range n"}, ex.Texts)
	require.Equal(t, []int32{0, 2, 1}, ex.Sections)
	require.Equal(t, []int32{1, 0, 1}, ex.Labels)
	require.False(t, ex.Eager())
}

func TestReadCSVErrors(t *testing.T) {
	tests := map[string]string{
		"leer":            "",
		"Spalte fehlt":    "sentences,code_labels\na,1\n",
		"Label ungueltig": "sentences,code_sections,code_labels\na,0,x\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(content))
			require.Error(t, err)
		})
	}
}

func TestPrepare(t *testing.T) {
	raw, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	tok, err := tokenizer.NewHash(128)
	require.NoError(t, err)

	t.Run("eager", func(t *testing.T) {
		ex, err := Prepare(context.Background(), raw, tok, PrepareOptions{NumProcesses: 2, MaxLength: 8})
		require.NoError(t, err)
		require.True(t, ex.Eager())
		require.Nil(t, ex.Texts)
		require.Len(t, ex.InputIDs, 3)
		for _, ids := range ex.InputIDs {
			require.Len(t, ids, 8)
		}
	})

	t.Run("dynamic", func(t *testing.T) {
		ex, err := Prepare(context.Background(), raw, tok, PrepareOptions{NumProcesses: 4, Dynamic: true})
		require.NoError(t, err)
		require.False(t, ex.Eager())
		require.Equal(t, "return x", ex.Texts[0])
	})
}

func TestLazySource(t *testing.T) {
	tok, err := tokenizer.NewHash(128)
	require.NoError(t, err)

	ex := Examples{
		Texts:    []string{"a", "b b", "c c c", "d", "e e"},
		Sections: []int32{0, 1, 0, 1, 0},
		Labels:   []int32{1, 0, 1, 0, 1},
	}

	train := NewLazySource(ex, tok, 2, 16, true, 1)
	require.Equal(t, 2, train.Steps())

	valid := NewLazySource(ex, tok, 2, 16, false, 1)
	require.Equal(t, 3, valid.Steps())

	it := valid.Open(context.Background())
	defer it.Close()
	b, err := it.Next(context.Background())
	require.NoError(t, err)

	// Padding auf die laengste Sequenz im Batch: "b b" -> CLS b b SEP
	require.Len(t, b.InputIDs[0], 4)
	require.Len(t, b.InputIDs[1], 4)
	require.Equal(t, []int32{1, 0}, b.Labels)

	src, err := NewSource(ex, nil, SourceOptions{BatchSize: 2})
	require.Error(t, err)
	require.Nil(t, src)
}

func TestAssemble(t *testing.T) {
	folded, err := SplitFold(testExamples(24), FoldOptions{
		K: 3, BatchSize: 4, GradientAccumulationSteps: 1,
		NumLabels: 2, NumSections: 3, IncludeSections: true,
	})
	require.NoError(t, err)

	train, valid, err := Assemble(folded, nil, AssembleOptions{BatchSize: 4, Seed: 9})
	require.NoError(t, err)

	// Training wiederholt sich ueber das Ende der Quelle hinaus
	it := train.Take(10).Iter(context.Background())
	defer it.Close()
	for range 10 {
		b, err := it.Next(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, b.Arity())
		require.Len(t, b.LabelWeights, b.Size())
		require.Len(t, b.SectionWeights, b.Size())
	}

	var n int
	vit := valid.Iter(context.Background())
	defer vit.Close()
	for {
		b, err := vit.Next(context.Background())
		if err != nil {
			break
		}
		n += b.Size()
	}
	require.Equal(t, folded.Valid.Len(), n)

}
