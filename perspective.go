package bimpm

import (
	"math"
)

// A Perspective holds the features of one strategy for a batch of sentence pairs.
type Perspective struct {
	Strategy Strategy
	Top      [][]Unit // (batch, output_dim)

	nodes [][]node // per batch element, in creation order
}

func newPerspective(st Strategy, w [][]Unit, left, right [][][]Unit) *Perspective {
	p := Perspective{
		Strategy: st,
		Top:      make([][]Unit, len(left)),
		nodes:    make([][]node, len(left)),
	}
	for b := range left {
		switch st {
		case Full:
			p.Top[b], p.nodes[b] = fullMatching(w, left[b], right[b])
		case MaxPooling:
			p.Top[b], p.nodes[b] = maxPoolingMatching(w, left[b], right[b])
		case Attentive:
			p.Top[b], p.nodes[b] = attentiveMatching(w, left[b], right[b])
		case MaxAttentive:
			p.Top[b], p.nodes[b] = maxAttentiveMatching(w, left[b], right[b])
		}
	}
	return &p
}

// Backward propagates the gradients set on Top to the strategy weights and to both inputs.
func (p *Perspective) Backward() {
	for _, nodes := range p.nodes {
		for i := len(nodes) - 1; i >= 0; i-- {
			nodes[i].Backward()
		}
	}
}

// Vals returns the feature values as a (batch, output_dim) tensor.
func (p *Perspective) Vals() [][]float64 {
	v := make([][]float64, len(p.Top))
	for b, top := range p.Top {
		v[b] = unitVals(top)
	}
	return v
}

// fullMatching compares every step of h1 with the last step of h2.
func fullMatching(w [][]Unit, h1, h2 [][]Unit) ([]Unit, []node) {
	last := h2[len(h2)-1]
	nodes := make([]node, 0, len(h1)+1)
	scores := make([]*Similarity, len(h1))
	for i := range h1 {
		scores[i] = NewSimilarity(h1[i], last)
		nodes = append(nodes, scores[i])
	}
	proj := NewProjection(w, scores)
	return proj.Top, append(nodes, proj)
}

// maxPoolingMatching compares every step of h1 with every step of h2.
func maxPoolingMatching(w [][]Unit, h1, h2 [][]Unit) ([]Unit, []node) {
	nodes := make([]node, 0, len(h1)*len(h2)+1)
	sims := make([][]*Similarity, len(h1))
	for i := range h1 {
		sims[i] = make([]*Similarity, len(h2))
		for j := range h2 {
			sims[i][j] = NewSimilarity(h1[i], h2[j])
			nodes = append(nodes, sims[i][j])
		}
	}
	proj := NewMaxProjection(w, sims)
	return proj.Top, append(nodes, proj)
}

// attentiveMatching compares every step of h1 with the mean of h2 weighted by attention.
func attentiveMatching(w [][]Unit, h1, h2 [][]Unit) ([]Unit, []node) {
	nodes := make([]node, 0, len(h1)*(len(h2)+3)+1)
	scores := make([]*Similarity, len(h1))
	for i := range h1 {
		sims := make([]*Similarity, len(h2))
		for j := range h2 {
			sims[j] = NewSimilarity(h1[i], h2[j])
			nodes = append(nodes, sims[j])
		}
		att := NewAttention(sims)
		mean := NewAttentiveMean(att, h2)
		scores[i] = NewSimilarity(h1[i], mean.Top)
		nodes = append(nodes, att, mean, scores[i])
	}
	proj := NewProjection(w, scores)
	return proj.Top, append(nodes, proj)
}

// maxAttentiveMatching compares every step of h1 with the step of h2 it is most similar to.
// The choice of step is piecewise constant and carries no gradient.
func maxAttentiveMatching(w [][]Unit, h1, h2 [][]Unit) ([]Unit, []node) {
	nodes := make([]node, 0, len(h1)+1)
	scores := make([]*Similarity, len(h1))
	for i := range h1 {
		u := unitVals(h1[i])
		best, bestSim := 0, math.Inf(-1)
		for j := range h2 {
			if c := cosine(u, unitVals(h2[j])); c > bestSim {
				best, bestSim = j, c
			}
		}
		scores[i] = NewSimilarity(h1[i], h2[best])
		nodes = append(nodes, scores[i])
	}
	proj := NewProjection(w, scores)
	return proj.Top, append(nodes, proj)
}
