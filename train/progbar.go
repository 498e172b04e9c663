// progbar.go - Fortschrittsanzeige pro Epoche
//
// Dieses Modul enthaelt:
// - Progbar: Balken mit ETA und Metriken im Keras-Format
package train

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/cortml/cort/metrics"
)

const barWidth = 30

// Progbar zeigt den Fortschritt einer Epoche. Auf einem Terminal wird die
// Zeile laufend ueberschrieben, sonst nur beim Abschluss geschrieben.
type Progbar struct {
	w       io.Writer
	target  int
	order   []string
	dynamic bool
	width   int

	start    time.Time
	lastLen  int
	finished bool
}

// NewProgbar erstellt einen Balken fuer target Schritte. order legt die
// Reihenfolge der angezeigten Metriken fest, weitere folgen sortiert.
func NewProgbar(w io.Writer, target int, order []string) *Progbar {
	p := &Progbar{w: w, target: target, order: order, start: time.Now()}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.dynamic = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

// Update setzt den Fortschritt auf current und zeigt values an
func (p *Progbar) Update(current int, values metrics.Logs, finalize bool) {
	if p.finished || (!p.dynamic && !finalize) {
		return
	}

	line := p.render(current, values, finalize, time.Since(p.start))
	if p.dynamic {
		if p.width > 0 && runewidth.StringWidth(line) >= p.width && !finalize {
			line = runewidth.Truncate(line, p.width-1, "")
		}
		pad := max(p.lastLen-runewidth.StringWidth(line), 0)
		fmt.Fprint(p.w, "\r"+line+strings.Repeat(" ", pad))
		p.lastLen = runewidth.StringWidth(line)
	} else {
		fmt.Fprint(p.w, line)
	}

	if finalize {
		fmt.Fprintln(p.w)
		p.finished = true
	}
}

func (p *Progbar) render(current int, values metrics.Logs, finalize bool, elapsed time.Duration) string {
	var b strings.Builder

	digits := len(fmt.Sprint(p.target))
	fmt.Fprintf(&b, "%*d/%d [", digits, current, p.target)

	done := 0
	if p.target > 0 {
		done = min(barWidth*current/p.target, barWidth)
	}
	if done > 0 {
		b.WriteString(strings.Repeat("=", done-1))
		if current < p.target {
			b.WriteByte('>')
		} else {
			b.WriteByte('=')
		}
	}
	b.WriteString(strings.Repeat(".", barWidth-done))
	b.WriteByte(']')

	switch {
	case finalize:
		perStep := time.Duration(0)
		if current > 0 {
			perStep = elapsed / time.Duration(current)
		}
		fmt.Fprintf(&b, " - %s %s/step", elapsed.Round(time.Second), perStep.Round(time.Millisecond))
	case current > 0:
		eta := time.Duration(float64(elapsed) / float64(current) * float64(p.target-current))
		fmt.Fprintf(&b, " - ETA: %s", eta.Round(time.Second))
	}

	for _, k := range p.keys(values) {
		v := values[k]
		if math.Abs(v) > 1e-3 || v == 0 {
			fmt.Fprintf(&b, " - %s: %.4f", k, v)
		} else {
			fmt.Fprintf(&b, " - %s: %.4e", k, v)
		}
	}

	return b.String()
}

func (p *Progbar) keys(values metrics.Logs) []string {
	keys := make([]string, 0, len(values))
	for _, k := range p.order {
		if _, ok := values[k]; ok {
			keys = append(keys, k)
		}
	}
	for _, k := range values.Keys() {
		if !slices.Contains(p.order, k) {
			keys = append(keys, k)
		}
	}
	return keys
}
