package bimpm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayer(t *testing.T, outputDim int, strategies Strategies, opts ...Option) *Layer {
	logger, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(logger), WithRand(rand.New(rand.NewSource(1)))}, opts...)
	l, err := NewLayer(outputDim, strategies, opts...)
	require.NoError(t, err)
	return l
}

func randInput(r *rand.Rand, batch, seqLen, width int) [][][]Unit {
	t := makeTensorUnit3(batch, seqLen, width)
	doUnit3(t, func(ids []int, u *Unit) { u.Val = r.NormFloat64() })
	return t
}

func TestNumPerspectives(t *testing.T) {
	tests := []struct {
		strategies Strategies
		want       int
	}{
		{NewStrategies(), 0},
		{NewStrategies(Full), 1},
		{NewStrategies(MaxPooling, MaxAttentive), 2},
		{NewStrategies(Full, MaxPooling, Attentive), 3},
		{AllStrategies(), 4},
	}
	for _, tt := range tests {
		l := newTestLayer(t, 3, tt.strategies)
		assert.Equal(t, tt.want, l.NumPerspectives(), "strategies %v", tt.strategies)
		assert.Len(t, tt.strategies.Active(), tt.want)
	}
}

func TestNewLayerInvalidConfig(t *testing.T) {
	for _, dim := range []int{0, -3} {
		_, err := NewLayer(dim, AllStrategies())
		assert.True(t, errors.Is(err, ErrInvalidConfig), "output dim %d: %v", dim, err)
	}

	_, err := NewLayer(2, AllStrategies(), WithInitRange(1, -1))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNilLogger(t *testing.T) {
	l, err := NewLayer(2, NewStrategies(), WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, l.logger)

	l, err = NewLayer(2, NewStrategies(Full), WithLogger(nil))
	require.NoError(t, err)
	r := rand.New(rand.NewSource(11))
	_, err = l.Forward(randInput(r, 1, 3, 2), randInput(r, 1, 3, 2))
	assert.NoError(t, err)
}

func TestNoStrategies(t *testing.T) {
	logger, hook := test.NewNullLogger()
	l, err := NewLayer(4, NewStrategies(), WithLogger(logger))
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	r := rand.New(rand.NewSource(2))
	out, err := l.Forward(randInput(r, 2, 3, 2), randInput(r, 2, 3, 2))
	require.NoError(t, err)
	assert.Empty(t, out.Perspectives)
	assert.Nil(t, out.Concat())
	assert.Equal(t, 0, l.NumWeights())

	shapes, err := l.ComputeOutputShape(Shape{Batch, 3, 2}, Shape{Batch, 3, 2})
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestFullOnly(t *testing.T) {
	l := newTestLayer(t, 5, NewStrategies(Full))
	r := rand.New(rand.NewSource(3))
	out, err := l.Forward(randInput(r, 2, 4, 3), randInput(r, 2, 4, 3))
	require.NoError(t, err)

	require.Len(t, out.Perspectives, 1)
	p := out.Perspectives[0]
	assert.Equal(t, Full, p.Strategy)
	require.Len(t, p.Top, 2)
	for _, top := range p.Top {
		assert.Len(t, top, 5)
	}

	w, ok := l.Weight(Full)
	require.True(t, ok)
	require.Len(t, w, 4)
	for _, row := range w {
		assert.Len(t, row, 5)
	}
	_, ok = l.Weight(MaxPooling)
	assert.False(t, ok)
}

func TestAllStrategies(t *testing.T) {
	l := newTestLayer(t, 8, AllStrategies())
	r := rand.New(rand.NewSource(4))
	out, err := l.Forward(randInput(r, 3, 6, 4), randInput(r, 3, 6, 4))
	require.NoError(t, err)

	require.Len(t, out.Perspectives, 4)
	seen := make(map[*Unit]Strategy)
	for i, p := range out.Perspectives {
		assert.Equal(t, Strategy(i), p.Strategy)
		require.Len(t, p.Top, 3)
		for _, top := range p.Top {
			assert.Len(t, top, 8)
		}

		w, ok := l.Weight(p.Strategy)
		require.True(t, ok)
		require.Len(t, w, 6)
		for _, row := range w {
			assert.Len(t, row, 8)
		}
		_, dup := seen[&w[0][0]]
		assert.False(t, dup, "%v shares its weight", p.Strategy)
		seen[&w[0][0]] = p.Strategy
	}
	assert.Equal(t, 4*6*8, l.NumWeights())

	concat := out.Concat()
	require.Len(t, concat, 3)
	for b := range concat {
		require.Len(t, concat[b], 4*8)
		for i, p := range out.Perspectives {
			assert.Equal(t, unitVals(p.Top[b]), concat[b][i*8:(i+1)*8], "batch %d, %v", b, p.Strategy)
		}
	}
}

func TestBuildOnce(t *testing.T) {
	l := newTestLayer(t, 2, NewStrategies(Full, Attentive))
	assert.False(t, l.Built())
	_, ok := l.Weight(Full)
	assert.False(t, ok)

	require.NoError(t, l.Build(Shape{Batch, 3, 2}, Shape{Batch, 3, 2}))
	assert.True(t, l.Built())
	w, _ := l.Weight(Full)
	before := l.WeightsVal()

	// Same configuration with a concrete batch size: no reallocation.
	require.NoError(t, l.Build(Shape{7, 3, 2}, Shape{7, 3, 2}))
	r := rand.New(rand.NewSource(5))
	_, err := l.Forward(randInput(r, 4, 3, 2), randInput(r, 4, 3, 2))
	require.NoError(t, err)
	again, _ := l.Weight(Full)
	assert.Same(t, &w[0][0], &again[0][0])
	assert.Equal(t, before, l.WeightsVal())

	err = l.Build(Shape{Batch, 5, 2}, Shape{Batch, 5, 2})
	assert.True(t, errors.Is(err, ErrShapeMismatch), "%v", err)
	err = l.Build(Shape{Batch, 3, 4}, Shape{Batch, 3, 4})
	assert.True(t, errors.Is(err, ErrShapeMismatch), "%v", err)
}

func TestBuildInvalidShape(t *testing.T) {
	l := newTestLayer(t, 2, AllStrategies())
	tests := []struct {
		left, right Shape
	}{
		{Shape{Batch, 3}, Shape{Batch, 3, 2}},
		{Shape{Batch, 0, 2}, Shape{Batch, 0, 2}},
		{Shape{Batch, 3, 2}, Shape{0, 3, 2}},
		{Shape{Batch, 3, -1}, Shape{Batch, 3, -1}},
	}
	for _, tt := range tests {
		err := l.Build(tt.left, tt.right)
		assert.True(t, errors.Is(err, ErrInvalidShape), "%v %v: %v", tt.left, tt.right, err)
	}
	assert.False(t, l.Built())
}

func TestForwardShapeMismatch(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	tests := []struct {
		name        string
		left, right [][][]Unit
		want        error
	}{
		{"seq len", randInput(r, 2, 4, 3), randInput(r, 2, 5, 3), ErrShapeMismatch},
		{"width", randInput(r, 2, 4, 3), randInput(r, 2, 4, 2), ErrShapeMismatch},
		{"batch", randInput(r, 2, 4, 3), randInput(r, 3, 4, 3), ErrShapeMismatch},
		{"empty", [][][]Unit{}, randInput(r, 2, 4, 3), ErrInvalidShape},
		{"ragged", append(randInput(r, 1, 4, 3), randInput(r, 1, 3, 3)...), randInput(r, 2, 4, 3), ErrInvalidShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLayer(t, 2, AllStrategies())
			out, err := l.Forward(tt.left, tt.right)
			assert.Nil(t, out)
			assert.True(t, errors.Is(err, tt.want), "%v", err)
			assert.False(t, l.Built())
		})
	}
}

func TestComputeOutputShape(t *testing.T) {
	l := newTestLayer(t, 5, NewStrategies(Full, MaxPooling, MaxAttentive))
	shapes, err := l.ComputeOutputShape(Shape{Batch, 4, 3}, Shape{Batch, 4, 3})
	require.NoError(t, err)
	require.Len(t, shapes, l.NumPerspectives())
	for _, s := range shapes {
		assert.Equal(t, Shape{Batch, 5}, s)
	}

	shapes, err = l.ComputeOutputShape(Shape{Batch, 4, 3}, Shape{2, 4, 3})
	require.NoError(t, err)
	r := rand.New(rand.NewSource(7))
	out, err := l.Forward(randInput(r, 2, 4, 3), randInput(r, 2, 4, 3))
	require.NoError(t, err)
	require.Len(t, out.Perspectives, len(shapes))
	for i, p := range out.Perspectives {
		assert.Equal(t, shapes[i], Shape{len(p.Top), len(p.Top[0])})
	}

	_, err = l.ComputeOutputShape(Shape{Batch, 4, 3}, Shape{Batch, 6, 3})
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	// Built for (?, 4, 3): shapes Forward rejects are rejected here too.
	for _, in := range []Shape{{Batch, 5, 3}, {2, 4, 2}} {
		shapes, err := l.ComputeOutputShape(in, in)
		assert.Nil(t, shapes, "%v", in)
		assert.True(t, errors.Is(err, ErrShapeMismatch), "%v: %v", in, err)

		out, err := l.Forward(randInput(r, 1, in[1], in[2]), randInput(r, 1, in[1], in[2]))
		assert.Nil(t, out)
		assert.True(t, errors.Is(err, ErrShapeMismatch), "%v: %v", in, err)
	}
}

func TestWeights(t *testing.T) {
	l := newTestLayer(t, 2, NewStrategies(MaxPooling, MaxAttentive))
	require.NoError(t, l.Build(Shape{Batch, 3, 4}, Shape{Batch, 3, 4}))

	tags := make(map[string]bool)
	l.Weights(func(tag string, u *Unit) {
		tags[tag] = true
		assert.True(t, u.Val >= DefaultInitLow && u.Val < DefaultInitHigh, "%s = %f", tag, u.Val)
		u.Grad = 1
	})
	assert.Len(t, tags, l.NumWeights())
	assert.True(t, tags["maxpooling[2][1]"])
	assert.True(t, tags["max-attentive[0][0]"])
	assert.False(t, tags["full[0][0]"])
	assert.Len(t, l.WeightsVal(), l.NumWeights())

	l.ClearGradients()
	l.Weights(func(tag string, u *Unit) { assert.Zero(t, u.Grad, tag) })
}

func TestInitRange(t *testing.T) {
	l := newTestLayer(t, 3, AllStrategies(), WithInitRange(0.5, 0.75))
	require.NoError(t, l.Build(Shape{Batch, 2, 2}, Shape{Batch, 2, 2}))
	for _, v := range l.WeightsVal() {
		assert.True(t, v >= 0.5 && v < 0.75, "%f", v)
	}
}

func setWeights(l *Layer, v float64) {
	l.Weights(func(tag string, u *Unit) { u.Val = v })
}

func TestMatchingIdenticalSentences(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	x := randInput(r, 1, 4, 3)
	y := UnitsFromVals([][][]float64{unitVals2(x[0])})

	l := newTestLayer(t, 2, AllStrategies())
	require.NoError(t, l.Build(Shape{1, 4, 3}, Shape{1, 4, 3}))
	setWeights(l, 1)
	out, err := l.Forward(x, y)
	require.NoError(t, err)

	// Every step of a sentence is most similar to itself.
	for _, st := range []Strategy{MaxPooling, MaxAttentive} {
		for _, v := range out.Perspectives[st].Top[0] {
			assert.InDelta(t, 4, v.Val, 1e-9, "%v", st)
		}
	}
	// The last step matches itself exactly under full matching.
	want := 0.0
	for i := range x[0] {
		want += cosine(unitVals(x[0][i]), unitVals(x[0][3]))
	}
	assert.InDelta(t, want, out.Perspectives[Full].Top[0][0].Val, 1e-9)
}

func TestMatchingReference(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	left, right := randInput(r, 3, 5, 4), randInput(r, 3, 5, 4)
	l := newTestLayer(t, 3, AllStrategies())
	out, err := l.Forward(left, right)
	require.NoError(t, err)

	for _, p := range out.Perspectives {
		w, _ := l.Weight(p.Strategy)
		want := referenceMatching(p.Strategy, unitVals3(left), unitVals3(right), unitVals2(w))
		for b := range want {
			for k := range want[b] {
				assert.InDelta(t, want[b][k], p.Top[b][k].Val, 1e-12, "%v[%d][%d]", p.Strategy, b, k)
			}
		}
	}
}

// referenceMatching computes the features of one strategy on plain values.
func referenceMatching(st Strategy, left, right [][][]float64, w [][]float64) [][]float64 {
	out := MakeTensor2(len(left), len(w[0]))
	for b := range left {
		h1, h2 := left[b], right[b]
		for i := range h1 {
			sims := make([]float64, len(h2))
			for j := range h2 {
				sims[j] = cosine(h1[i], h2[j])
			}
			for k := range out[b] {
				switch st {
				case Full:
					out[b][k] += w[i][k] * cosine(h1[i], h2[len(h2)-1])
				case MaxPooling:
					best := math.Inf(-1)
					for _, s := range sims {
						best = math.Max(best, w[i][k]*s)
					}
					out[b][k] += best
				case Attentive:
					var sum float64
					for _, s := range sims {
						sum += math.Exp(s)
					}
					mean := make([]float64, len(h2[0]))
					for j := range h2 {
						for d := range mean {
							mean[d] += math.Exp(sims[j]) / sum * h2[j][d]
						}
					}
					out[b][k] += w[i][k] * cosine(h1[i], mean)
				case MaxAttentive:
					best := 0
					for j, s := range sims {
						if s > sims[best] {
							best = j
						}
					}
					out[b][k] += w[i][k] * sims[best]
				}
			}
		}
	}
	return out
}

func unitVals2(t [][]Unit) [][]float64 {
	v := make([][]float64, len(t))
	for i := range t {
		v[i] = unitVals(t[i])
	}
	return v
}

func unitVals3(t [][][]Unit) [][][]float64 {
	v := make([][][]float64, len(t))
	for i := range t {
		v[i] = unitVals2(t[i])
	}
	return v
}
