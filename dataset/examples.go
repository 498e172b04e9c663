// examples.go - Rohdaten und Vorverarbeitung
//
// Dieses Modul enthaelt:
// - Examples: Parallele Arrays aus Eingaben, Sections und Labels
// - LoadCSV: Liest sentences/code_sections/code_labels aus einer CSV-Datei
// - Prepare: Normalisiert Texte parallel und tokenisiert optional vorab
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/tokenizer"
)

// CSV-Spalten der Trainingsdaten
const (
	ColumnSentences = "sentences"
	ColumnSections  = "code_sections"
	ColumnLabels    = "code_labels"
)

// Examples haelt den Datensatz als parallele Arrays. Genau eines von Texts
// (lazy) und InputIDs (eager) ist gesetzt.
type Examples struct {
	Texts    []string
	InputIDs [][]int32
	Sections []int32
	Labels   []int32
}

// Len gibt die Anzahl der Beispiele zurueck
func (e Examples) Len() int {
	return len(e.Labels)
}

// Eager meldet, ob die Eingaben bereits tokenisiert sind
func (e Examples) Eager() bool {
	return e.InputIDs != nil
}

// Subset waehlt die Beispiele an den Positionen idx aus
func (e Examples) Subset(idx []int) Examples {
	var out Examples
	if e.Texts != nil {
		out.Texts = make([]string, len(idx))
	}
	if e.InputIDs != nil {
		out.InputIDs = make([][]int32, len(idx))
	}
	out.Sections = make([]int32, len(idx))
	out.Labels = make([]int32, len(idx))

	for i, j := range idx {
		if out.Texts != nil {
			out.Texts[i] = e.Texts[j]
		}
		if out.InputIDs != nil {
			out.InputIDs[i] = e.InputIDs[j]
		}
		out.Sections[i] = e.Sections[j]
		out.Labels[i] = e.Labels[j]
	}

	return out
}

// LoadCSV liest die Trainingsdaten. Ein fuehrendes BOM wird entfernt.
func LoadCSV(path string) (Examples, error) {
	f, err := os.Open(path)
	if err != nil {
		return Examples{}, err
	}
	defer f.Close()

	return ReadCSV(f)
}

// ReadCSV liest Trainingsdaten aus r
func ReadCSV(r io.Reader) (Examples, error) {
	tr := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, tr))

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Examples{}, errors.New("csv: missing header")
	} else if err != nil {
		return Examples{}, err
	}

	cols := map[string]int{ColumnSentences: -1, ColumnSections: -1, ColumnLabels: -1}
	for i, h := range header {
		if _, ok := cols[strings.TrimSpace(h)]; ok {
			cols[strings.TrimSpace(h)] = i
		}
	}
	for name, i := range cols {
		if i < 0 {
			return Examples{}, fmt.Errorf("csv: missing column %q", name)
		}
	}

	var ex Examples
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return Examples{}, err
		}

		section, err := strconv.ParseInt(strings.TrimSpace(rec[cols[ColumnSections]]), 10, 32)
		if err != nil {
			return Examples{}, fmt.Errorf("csv line %d: %s: %w", line, ColumnSections, err)
		}

		label, err := strconv.ParseInt(strings.TrimSpace(rec[cols[ColumnLabels]]), 10, 32)
		if err != nil {
			return Examples{}, fmt.Errorf("csv line %d: %s: %w", line, ColumnLabels, err)
		}

		ex.Texts = append(ex.Texts, rec[cols[ColumnSentences]])
		ex.Sections = append(ex.Sections, int32(section))
		ex.Labels = append(ex.Labels, int32(label))
	}

	return ex, nil
}

// PrepareOptions steuert die Vorverarbeitung
type PrepareOptions struct {
	NumProcesses int

	// Dynamic behaelt die Texte und tokenisiert erst pro Batch
	Dynamic bool

	MaxLength int
}

// Prepare normalisiert die Texte auf NumProcesses Workern. Ohne Dynamic wird
// danach mit Padding auf MaxLength tokenisiert und die Texte verworfen.
func Prepare(ctx context.Context, raw Examples, tok ml.Tokenizer, opts PrepareOptions) (Examples, error) {
	n := len(raw.Texts)
	workers := max(opts.NumProcesses, 1)
	chunk := (n + workers - 1) / workers

	texts := make([]string, n)
	var ids [][]int32
	if !opts.Dynamic {
		ids = make([][]int32, n)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				texts[i] = tokenizer.Normalize(raw.Texts[i])
			}

			if opts.Dynamic {
				return nil
			}

			encoded, err := tok.Encode(texts[start:end], ml.TokenizeOptions{
				Padding:    ml.PaddingMaxLength,
				Truncation: true,
				MaxLength:  opts.MaxLength,
			})
			if err != nil {
				return fmt.Errorf("tokenize examples %d-%d: %w", start, end, err)
			}

			copy(ids[start:end], encoded)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Examples{}, err
	}

	slog.Info("prepared examples", "count", n, "workers", workers, "dynamic", opts.Dynamic)

	out := Examples{Sections: raw.Sections, Labels: raw.Labels}
	if opts.Dynamic {
		out.Texts = texts
	} else {
		out.InputIDs = ids
	}

	return out, nil
}
