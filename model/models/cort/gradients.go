package cort

import (
	"github.com/cortml/cort/ml"
	"github.com/cortml/cort/tokenizer"
)

// gradients sammelt Zwischenwerte des Backward-Passes. Ein nil-Empfaenger
// steht fuer Inferenz.
type gradients struct {
	model *Model

	dh    *ml.Tensor // dL/d repr, [B, D]
	heads []headGrad
	byRef map[*ml.Tensor]*ml.Tensor
}

type headGrad struct {
	head *Head
	dz   *ml.Tensor // dL/d logits, [B, C]
}

func (m *Model) newGradients(b int) *gradients {
	return &gradients{
		model: m,
		dh:    ml.Zeros(b, m.embeddingSize),
		byRef: make(map[*ml.Tensor]*ml.Tensor),
	}
}

func (g *gradients) headGrad(h *Head, repr *ml.Tensor) *ml.Tensor {
	if g == nil {
		return nil
	}

	dz := ml.Zeros(repr.Dim(0), h.classes())
	g.heads = append(g.heads, headGrad{head: h, dz: dz})
	return dz
}

func (g *gradients) reprGrad() *ml.Tensor {
	if g == nil {
		return nil
	}
	return g.dh
}

// backward propagiert die Logit-Gradienten in die Koepfe und die
// Repraesentation und verteilt dL/d pooled auf die Embedding-Zeilen
func (g *gradients) backward(ids [][]int32, counts []int, repr *ml.Tensor) {
	d := repr.Dim(1)
	for _, hg := range g.heads {
		c := hg.head.classes()
		w := hg.head.Weight.Floats()
		dw := ml.Zeros(d, c)
		db := ml.Zeros(c)
		for i := range repr.Dim(0) {
			x, dz, dh := repr.Row(i), hg.dz.Row(i), g.dh.Row(i)
			for j, v := range dz {
				db.Floats()[j] += v
			}
			for k := range d {
				for j, v := range dz {
					dw.Floats()[k*c+j] += x[k] * v
					dh[k] += w[k*c+j] * v
				}
			}
		}
		g.byRef[hg.head.Weight] = dw
		g.byRef[hg.head.Bias] = db
	}

	m := g.model
	demb := ml.Zeros(m.vocabSize, m.embeddingSize)
	for i, row := range ids {
		if counts[i] == 0 {
			continue
		}

		dp := g.dh.Row(i)
		if !m.reprPreact {
			for k, r := range repr.Row(i) {
				dp[k] *= 1 - r*r
			}
		}

		n := float64(counts[i])
		for _, id := range row {
			if id == tokenizer.PadID {
				continue
			}
			dst := demb.Row(int(id))
			for k, v := range dp {
				dst[k] += v / n
			}
		}
	}
	g.byRef[m.Embeddings] = demb
}

// align ordnet die Gradienten in Parameters()-Reihenfolge
func (m *Model) align(g *gradients) []*ml.Tensor {
	params := m.Parameters()
	out := make([]*ml.Tensor, len(params))
	for i, p := range params {
		out[i] = g.byRef[p.Value]
	}
	return out
}
