package bimpm

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is the construction configuration of a Layer.
type Config struct {
	Name       string          `yaml:"name,omitempty" json:"name,omitempty"`
	OutputDim  int             `yaml:"output_dim" json:"output_dim"`
	Strategies map[string]bool `yaml:"strategies,omitempty" json:"strategies,omitempty"`
	InitRange  *InitRange      `yaml:"init_range,omitempty" json:"init_range,omitempty"`
}

// InitRange is the range of the uniform weight initializer.
type InitRange struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
}

// ParseConfig decodes a YAML layer configuration.
func ParseConfig(b []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "decode: %v", err)
	}
	return c, nil
}

func (c Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode layer config")
	}
	return b, nil
}

// NewLayerFromConfig returns an unbuilt layer for c. Options are applied after the configuration.
func NewLayerFromConfig(c Config, opts ...Option) (*Layer, error) {
	strategies, err := ParseStrategies(c.Strategies)
	if err != nil {
		return nil, err
	}
	var cOpts []Option
	if c.Name != "" {
		cOpts = append(cOpts, WithName(c.Name))
	}
	if c.InitRange != nil {
		cOpts = append(cOpts, WithInitRange(c.InitRange.Low, c.InitRange.High))
	}
	return NewLayer(c.OutputDim, strategies, append(cOpts, opts...)...)
}

// Config returns the configuration l was constructed with.
func (l *Layer) Config() Config {
	return Config{
		Name:       l.name,
		OutputDim:  l.outputDim,
		Strategies: l.strategies.Map(),
		InitRange:  &InitRange{Low: l.initLow, High: l.initHigh},
	}
}
