package bimpm

import (
	"math"

	"github.com/gonum/floats"
)

// A node is a step of the matching graph that can propagate gradients to its inputs.
type node interface {
	Backward()
}

// Similarity is the cosine similarity of two vectors.
// Vectors with zero norm have similarity 0 and receive no gradient.
type Similarity struct {
	U   []Unit
	V   []Unit
	Top Unit

	UV    float64
	Unorm float64
	Vnorm float64
}

func NewSimilarity(u, v []Unit) *Similarity {
	s := Similarity{
		U: u,
		V: v,
	}
	uv, vv := unitVals(u), unitVals(v)
	s.UV = dot(uv, vv)
	s.Unorm = floats.Norm(uv, 2)
	s.Vnorm = floats.Norm(vv, 2)
	if s.Unorm*s.Vnorm < machineEpsilon {
		return &s
	}
	s.Top.Val = s.UV / (s.Unorm * s.Vnorm)
	return &s
}

func (s *Similarity) Backward() {
	if s.Unorm*s.Vnorm < machineEpsilon {
		return
	}
	uvuu := s.UV / (s.Unorm * s.Unorm)
	uvvv := s.UV / (s.Vnorm * s.Vnorm)
	uvg := s.Top.Grad / (s.Unorm * s.Vnorm)
	for i, u := range s.U {
		v := s.V[i].Val
		s.U[i].Grad += (v - u.Val*uvuu) * uvg
		s.V[i].Grad += (u.Val - v*uvvv) * uvg
	}
}

// Attention normalizes a row of similarities into weights with a softmax.
type Attention struct {
	Units []*Similarity
	Top   []Unit
}

func NewAttention(units []*Similarity) *Attention {
	a := Attention{
		Units: units,
		Top:   make([]Unit, len(units)),
	}
	// Subtract the max before math.Exp for numerical stability.
	max := math.Inf(-1)
	for _, u := range a.Units {
		max = math.Max(max, u.Top.Val)
	}
	var sum float64 = 0
	for i := 0; i < len(a.Top); i++ {
		a.Top[i].Val = math.Exp(a.Units[i].Top.Val - max)
		sum += a.Top[i].Val
	}
	for i := 0; i < len(a.Top); i++ {
		a.Top[i].Val = a.Top[i].Val / sum
	}
	return &a
}

func (a *Attention) Backward() {
	var gv float64 = 0
	for _, top := range a.Top {
		gv += top.Grad * top.Val
	}
	for i, top := range a.Top {
		a.Units[i].Top.Grad += (top.Grad - gv) * top.Val
	}
}

// AttentiveMean is the attention-weighted mean of the steps of a sequence.
type AttentiveMean struct {
	W   *Attention
	Seq [][]Unit
	Top []Unit
}

func NewAttentiveMean(w *Attention, seq [][]Unit) *AttentiveMean {
	m := AttentiveMean{
		W:   w,
		Seq: seq,
		Top: make([]Unit, len(seq[0])),
	}
	for i := 0; i < len(m.Top); i++ {
		var v float64 = 0
		for j := 0; j < len(w.Top); j++ {
			v += w.Top[j].Val * seq[j][i].Val
		}
		m.Top[i].Val = v
	}
	return &m
}

func (m *AttentiveMean) Backward() {
	for i := 0; i < len(m.W.Top); i++ {
		var grad float64 = 0
		for j := 0; j < len(m.Top); j++ {
			grad += m.Top[j].Grad * m.Seq[i][j].Val
		}
		m.W.Top[i].Grad += grad
	}

	for i := 0; i < len(m.Seq); i++ {
		for j := 0; j < len(m.Seq[i]); j++ {
			m.Seq[i][j].Grad += m.Top[j].Grad * m.W.Top[i].Val
		}
	}
}

// Projection reduces one matching score per left step into output_dim features,
// Top[k] = sum_i W[i][k] * Scores[i].
type Projection struct {
	W      [][]Unit
	Scores []*Similarity
	Top    []Unit
}

func NewProjection(w [][]Unit, scores []*Similarity) *Projection {
	p := Projection{
		W:      w,
		Scores: scores,
		Top:    make([]Unit, len(w[0])),
	}
	for k := 0; k < len(p.Top); k++ {
		var v float64 = 0
		for i, s := range scores {
			v += w[i][k].Val * s.Top.Val
		}
		p.Top[k].Val = v
	}
	return &p
}

func (p *Projection) Backward() {
	for i, s := range p.Scores {
		var grad float64 = 0
		for k := 0; k < len(p.Top); k++ {
			grad += p.Top[k].Grad * p.W[i][k].Val
			p.W[i][k].Grad += p.Top[k].Grad * s.Top.Val
		}
		s.Top.Grad += grad
	}
}

// MaxProjection keeps, for every left step and output dimension, the largest weighted
// similarity over all right steps, Top[k] = sum_i max_j W[i][k] * Sims[i][j].
type MaxProjection struct {
	W    [][]Unit
	Sims [][]*Similarity
	Top  []Unit

	argmax [][]int
}

func NewMaxProjection(w [][]Unit, sims [][]*Similarity) *MaxProjection {
	p := MaxProjection{
		W:      w,
		Sims:   sims,
		Top:    make([]Unit, len(w[0])),
		argmax: make([][]int, len(sims)),
	}
	for i := range sims {
		p.argmax[i] = make([]int, len(p.Top))
		for k := 0; k < len(p.Top); k++ {
			best := math.Inf(-1)
			for j, s := range sims[i] {
				if v := w[i][k].Val * s.Top.Val; v > best {
					best = v
					p.argmax[i][k] = j
				}
			}
			p.Top[k].Val += best
		}
	}
	return &p
}

func (p *MaxProjection) Backward() {
	for i := range p.Sims {
		for k := 0; k < len(p.Top); k++ {
			s := p.Sims[i][p.argmax[i][k]]
			p.W[i][k].Grad += p.Top[k].Grad * s.Top.Val
			s.Top.Grad += p.Top[k].Grad * p.W[i][k].Val
		}
	}
}
