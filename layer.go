// Package bimpm implements the multi-perspective matching layer of the
// Bilateral Multi-Perspective Matching model (Wang et al., 2017, section 3.2).
//
// The layer compares a left and a right sequence of contextual embeddings under up
// to four strategies and emits one output_dim feature vector per strategy and
// sentence pair. Values and gradients live in Units: Forward builds the matching
// graph, and Backward on its output accumulates gradients into the strategy weights
// and into the input units.
package bimpm

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default range of the uniform weight initializer.
const (
	DefaultInitLow  = -0.05
	DefaultInitHigh = 0.05
)

// Layer is a multi-perspective matching layer.
// It is unbuilt until Build or the first Forward fixes the input sequence length and width.
type Layer struct {
	name       string
	outputDim  int
	strategies Strategies
	initLow    float64
	initHigh   float64
	rnd        *rand.Rand
	logger     logrus.FieldLogger

	built   bool
	seqLen  int
	width   int
	weights [numStrategies][][]Unit
}

// An Option configures a Layer.
type Option func(*Layer)

func WithName(name string) Option {
	return func(l *Layer) { l.name = name }
}

// WithLogger sets the layer logger. A nil logger keeps the default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithRand sets the source of the initial weights. The package source is used otherwise.
func WithRand(rnd *rand.Rand) Option {
	return func(l *Layer) { l.rnd = rnd }
}

// WithInitRange sets the range [low, high) of the uniform weight initializer.
func WithInitRange(low, high float64) Option {
	return func(l *Layer) {
		l.initLow = low
		l.initHigh = high
	}
}

// NewLayer returns an unbuilt layer producing outputDim features per enabled strategy.
func NewLayer(outputDim int, strategies Strategies, opts ...Option) (*Layer, error) {
	l := Layer{
		name:       "multi_perspective",
		outputDim:  outputDim,
		strategies: strategies,
		initLow:    DefaultInitLow,
		initHigh:   DefaultInitHigh,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&l)
	}
	if outputDim <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "output dimension must be positive, got %d", outputDim)
	}
	if l.initHigh < l.initLow {
		return nil, errors.Wrapf(ErrInvalidConfig, "init range [%g, %g) is empty", l.initLow, l.initHigh)
	}
	if strategies.NumPerspectives() == 0 {
		l.logger.WithField("layer", l.name).Warn("no matching strategy enabled, layer output will be empty")
	}
	return &l, nil
}

func (l *Layer) Name() string {
	return l.name
}

func (l *Layer) OutputDim() int {
	return l.outputDim
}

func (l *Layer) Strategies() Strategies {
	return l.strategies
}

// NumPerspectives is the number of enabled strategies, which is also the number of outputs of Forward.
func (l *Layer) NumPerspectives() int {
	return l.strategies.NumPerspectives()
}

func (l *Layer) Built() bool {
	return l.built
}

// Build allocates a (seq_len, output_dim) weight for every enabled strategy.
// Building again with the same sequence length and width is a no-op;
// the batch dimension may differ or be the Batch placeholder.
// The weights are fixed for the lifetime of the layer: any other sequence length
// or width is an ErrShapeMismatch.
func (l *Layer) Build(left, right Shape) error {
	if err := checkPair(left, right); err != nil {
		return errors.Wrapf(err, "build %s", l.name)
	}
	if l.built {
		return errors.Wrapf(l.checkBuilt(left), "build %s", l.name)
	}

	l.seqLen, l.width = left[1], left[2]
	for _, st := range l.strategies.Active() {
		w := makeTensorUnit2(l.seqLen, l.outputDim)
		doUnit2(w, func(ids []int, u *Unit) { u.Val = l.uniform() })
		l.weights[st] = w
	}
	l.built = true
	l.logger.WithFields(logrus.Fields{
		"layer":      l.name,
		"strategies": l.strategies.String(),
		"input":      Shape{Batch, l.seqLen, l.width}.String(),
		"weights":    l.NumWeights(),
	}).Debug("built multi-perspective layer")
	return nil
}

// checkBuilt requires input to match the shape the weights were built for.
func (l *Layer) checkBuilt(input Shape) error {
	if input[1] != l.seqLen || input[2] != l.width {
		return errors.Wrapf(ErrShapeMismatch, "input %v does not match built shape %v", input, Shape{Batch, l.seqLen, l.width})
	}
	return nil
}

func (l *Layer) uniform() float64 {
	var r float64
	if l.rnd != nil {
		r = l.rnd.Float64()
	} else {
		r = rand.Float64()
	}
	return l.initLow + r*(l.initHigh-l.initLow)
}

// Forward matches left against right, both (batch, seq_len, width).
// The layer is built on first use. Inputs must agree on every dimension.
func (l *Layer) Forward(left, right [][][]Unit) (*Output, error) {
	ls, err := ShapeOf(left)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: left input", l.name)
	}
	rs, err := ShapeOf(right)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: right input", l.name)
	}
	if err := l.Build(ls, rs); err != nil {
		return nil, err
	}

	active := l.strategies.Active()
	out := Output{Perspectives: make([]*Perspective, 0, len(active))}
	for _, st := range active {
		out.Perspectives = append(out.Perspectives, newPerspective(st, l.weights[st], left, right))
	}
	return &out, nil
}

// ComputeOutputShape returns the shapes Forward produces for the given input shapes:
// one (batch, output_dim) entry per enabled strategy.
// Once built, inputs Forward would reject are rejected here too.
func (l *Layer) ComputeOutputShape(left, right Shape) ([]Shape, error) {
	if err := checkPair(left, right); err != nil {
		return nil, errors.Wrapf(err, "output shape of %s", l.name)
	}
	if l.built {
		if err := l.checkBuilt(left); err != nil {
			return nil, errors.Wrapf(err, "output shape of %s", l.name)
		}
	}
	batch := left[0]
	if batch == Batch {
		batch = right[0]
	}
	shapes := make([]Shape, 0, l.NumPerspectives())
	for range l.strategies.Active() {
		shapes = append(shapes, Shape{batch, l.outputDim})
	}
	return shapes, nil
}

// Weight returns the weight of a strategy, or false if the strategy is disabled or the layer is unbuilt.
func (l *Layer) Weight(st Strategy) ([][]Unit, bool) {
	if !l.built || !l.strategies.Enabled(st) {
		return nil, false
	}
	return l.weights[st], true
}

// Weights calls f on every trainable unit, tagged like "full[3][2]".
func (l *Layer) Weights(f func(tag string, u *Unit)) {
	l.doAllWeights(func(tag string, ids []int, u *Unit) {
		s := tag
		for i := len(ids) - 1; i >= 0; i-- {
			s = fmt.Sprintf("%s[%d]", s, ids[i])
		}
		f(s, u)
	})
}

// WeightsVal returns the values of all trainable units in Weights order.
func (l *Layer) WeightsVal() []float64 {
	v := make([]float64, 0, l.NumWeights())
	l.doAllWeights(func(tag string, ids []int, u *Unit) { v = append(v, u.Val) })
	return v
}

func (l *Layer) ClearGradients() {
	l.doAllWeights(func(tag string, ids []int, u *Unit) { u.Grad = 0 })
}

func (l *Layer) NumWeights() int {
	if !l.built {
		return 0
	}
	return l.NumPerspectives() * l.seqLen * l.outputDim
}

func (l *Layer) doAllWeights(f func(tag string, ids []int, u *Unit)) {
	if !l.built {
		return
	}
	for _, st := range l.strategies.Active() {
		tag := st.String()
		doUnit2(l.weights[st], func(ids []int, u *Unit) { f(tag, ids, u) })
	}
}

// Output holds one Perspective per enabled strategy, in strategy order.
type Output struct {
	Perspectives []*Perspective
}

// Backward propagates the gradients set on every perspective.
func (o *Output) Backward() {
	for _, p := range o.Perspectives {
		p.Backward()
	}
}

// Vals returns the feature values as a (num_perspectives, batch, output_dim) tensor.
func (o *Output) Vals() [][][]float64 {
	v := make([][][]float64, len(o.Perspectives))
	for i, p := range o.Perspectives {
		v[i] = p.Vals()
	}
	return v
}

// Concat joins the perspectives of every sentence pair into one
// (batch, num_perspectives*output_dim) matching vector.
func (o *Output) Concat() [][]float64 {
	if len(o.Perspectives) == 0 {
		return nil
	}
	batch := len(o.Perspectives[0].Top)
	v := make([][]float64, batch)
	for b := 0; b < batch; b++ {
		for _, p := range o.Perspectives {
			v[b] = append(v[b], unitVals(p.Top[b])...)
		}
	}
	return v
}
