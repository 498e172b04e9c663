package train

import (
	"errors"
	"fmt"

	"github.com/cortml/cort/dataset"
	"github.com/cortml/cort/ml"
)

// ErrInputArity wird geliefert, wenn ein Batch ohne Section-Task weder
// (Eingaben, Labels) noch (Eingaben, Labels, Gewichte) ist
var ErrInputArity = errors.New("number of inputs must be 2 or 3")

// wrapInputs uebersetzt einen Batch in Modell-Eingaben. Mit Section-Task wird
// der Batch unveraendert durchgereicht, sonst fallen Section-Labels und
// Section-Gewichte weg.
func wrapInputs(b dataset.Batch, includeSections bool) (ml.Inputs, error) {
	in := ml.Inputs{InputIDs: b.InputIDs, Labels: b.Labels}

	if includeSections {
		in.Weights = b.LabelWeights
		in.SectionLabels = b.Sections
		in.SectionWeights = b.SectionWeights
		return in, nil
	}

	switch n := b.Arity(); n {
	case 3:
		in.Weights = b.LabelWeights
	case 2:
	default:
		return ml.Inputs{}, fmt.Errorf("%w, received %d instead", ErrInputArity, n)
	}

	return in, nil
}
