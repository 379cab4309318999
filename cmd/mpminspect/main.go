// Command mpminspect builds a multi-perspective matching layer, prints its inferred
// output shapes and the features it produces for a generated pair of sentences.
package main

import (
	"encoding/json"
	"math/rand"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/fumin/bimpm"
	"github.com/fumin/bimpm/paraphrase"
)

type options struct {
	Config     string   `long:"config" description:"YAML layer configuration, overrides --output-dim and --strategy"`
	OutputDim  int      `long:"output-dim" default:"5" description:"dimensionality of every perspective"`
	Strategies []string `long:"strategy" description:"strategy to enable, repeatable (default: all)"`
	Batch      int      `long:"batch" default:"2" description:"number of sentence pairs"`
	SeqLen     int      `long:"seq-len" default:"4" description:"steps per sentence"`
	Width      int      `long:"width" default:"3" description:"embedding width"`
	Noise      float64  `long:"noise" default:"0.1" description:"noise added to the paraphrase"`
	Unrelated  bool     `long:"unrelated" description:"match unrelated sentences instead of paraphrases"`
	Seed       int64    `long:"seed" default:"1" description:"random seed"`
	Verbose    bool     `short:"v" long:"verbose" description:"debug logging"`
}

type report struct {
	Layer        bimpm.Config  `json:"layer"`
	OutputShapes []string      `json:"output_shapes"`
	Features     [][][]float64 `json:"features"`
	Matching     [][]float64   `json:"matching"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.WithError(err).Fatal("load layer config")
	}

	r := rand.New(rand.NewSource(opts.Seed))
	layer, err := bimpm.NewLayerFromConfig(cfg, bimpm.WithLogger(logger), bimpm.WithRand(r))
	if err != nil {
		logger.WithError(err).Fatal("create layer")
	}

	in := bimpm.Shape{bimpm.Batch, opts.SeqLen, opts.Width}
	shapes, err := layer.ComputeOutputShape(in, in)
	if err != nil {
		logger.WithError(err).Fatal("infer output shape")
	}

	left, right := paraphrase.GenPair(r, opts.Batch, opts.SeqLen, opts.Width, opts.Noise)
	if opts.Unrelated {
		left, right = paraphrase.GenUnrelated(r, opts.Batch, opts.SeqLen, opts.Width)
	}
	out, err := layer.Forward(bimpm.UnitsFromVals(left), bimpm.UnitsFromVals(right))
	if err != nil {
		logger.WithError(err).Fatal("forward")
	}
	logger.WithFields(logrus.Fields{
		"perspectives": layer.NumPerspectives(),
		"weights":      layer.NumWeights(),
	}).Info("matched generated pairs")

	rep := report{
		Layer:    layer.Config(),
		Features: out.Vals(),
		Matching: out.Concat(),
	}
	for _, s := range shapes {
		rep.OutputShapes = append(rep.OutputShapes, s.String())
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		logger.WithError(err).Fatal("write report")
	}
}

func loadConfig(opts options) (bimpm.Config, error) {
	if opts.Config != "" {
		b, err := os.ReadFile(opts.Config)
		if err != nil {
			return bimpm.Config{}, err
		}
		return bimpm.ParseConfig(b)
	}
	cfg := bimpm.Config{OutputDim: opts.OutputDim}
	if len(opts.Strategies) > 0 {
		cfg.Strategies = make(map[string]bool, len(opts.Strategies))
		for _, s := range opts.Strategies {
			cfg.Strategies[s] = true
		}
	}
	return cfg, nil
}
