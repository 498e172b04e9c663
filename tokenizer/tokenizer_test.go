package tokenizer

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cortml/cort/ml"
)

func TestSplit(t *testing.T) {
	h, err := NewHash(100)
	if err != nil {
		t.Fatal(err)
	}

	got, err := h.split("func main() {}")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"func", " main", "()", " {}"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("split() mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode(t *testing.T) {
	h, err := NewHash(50)
	if err != nil {
		t.Fatal(err)
	}

	texts := []string{"return x", "if err != nil { return err }"}

	t.Run("ohne Padding", func(t *testing.T) {
		got, err := h.Encode(texts, ml.TokenizeOptions{})
		if err != nil {
			t.Fatal(err)
		}

		for i, ids := range got {
			if ids[0] != ClsID || ids[len(ids)-1] != SepID {
				t.Errorf("Sequenz %d: %v, erwartet CLS ... SEP", i, ids)
			}
			for _, id := range ids[1 : len(ids)-1] {
				if id < numReserved || id >= 50 {
					t.Errorf("Sequenz %d: ID %d ausserhalb des Vokabulars", i, id)
				}
			}
		}

		if len(got[0]) == len(got[1]) {
			t.Error("Sequenzen sollten ungleich lang sein")
		}
	})

	t.Run("longest", func(t *testing.T) {
		got, err := h.Encode(texts, ml.TokenizeOptions{Padding: ml.PaddingLongest})
		if err != nil {
			t.Fatal(err)
		}

		if len(got[0]) != len(got[1]) {
			t.Fatalf("Laengen %d und %d, erwartet gleich", len(got[0]), len(got[1]))
		}
		if got[0][len(got[0])-1] != PadID {
			t.Errorf("kurze Sequenz endet nicht mit Padding: %v", got[0])
		}
	})

	t.Run("max_length mit Truncation", func(t *testing.T) {
		got, err := h.Encode(texts, ml.TokenizeOptions{Padding: ml.PaddingMaxLength, Truncation: true, MaxLength: 4})
		if err != nil {
			t.Fatal(err)
		}

		for i, ids := range got {
			if len(ids) != 4 {
				t.Errorf("Sequenz %d hat Laenge %d, erwartet 4", i, len(ids))
			}
		}

		if !slices.Contains(got[1], SepID) || got[1][3] != SepID {
			t.Errorf("abgeschnittene Sequenz ohne SEP am Ende: %v", got[1])
		}
	})

	t.Run("deterministisch", func(t *testing.T) {
		a, _ := h.Encode(texts, ml.TokenizeOptions{})
		b, _ := h.Encode(texts, ml.TokenizeOptions{})
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("Encode nicht deterministisch:\n%s", diff)
		}
	})
}

func TestNewHashErrors(t *testing.T) {
	if _, err := NewHash(numReserved); err == nil {
		t.Error("erwartet Fehler fuer zu kleines Vokabular")
	}

	if _, err := NewHashWithPattern(100, `(`); err == nil {
		t.Error("erwartet Fehler fuer ungueltiges Muster")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Return X", "return x"},
		{"ﬁle", "file"},
		{"a\r\nb", "a\nb"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, erwartet %q", tt.in, got, tt.want)
		}
	}
}
