package bimpm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// A Strategy is one way of matching the left sentence against the right sentence.
type Strategy int

// Strategies are listed in the order their perspectives appear in the layer output.
const (
	// Full compares every left step with the last step of the right sentence.
	Full Strategy = iota
	// MaxPooling compares every left step with every right step and keeps the maximum per output dimension.
	MaxPooling
	// Attentive compares every left step with the attention-weighted mean of the right sentence.
	Attentive
	// MaxAttentive compares every left step with the right step it attends to most.
	MaxAttentive

	numStrategies
)

var strategyNames = [numStrategies]string{"full", "maxpooling", "attentive", "max-attentive"}

func (s Strategy) String() string {
	if s < 0 || s >= numStrategies {
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown strategy %q, available: %s", name, strings.Join(strategyNames[:], ", "))
}

// ListAvailableStrategies returns the names of all recognized strategies in output order.
func ListAvailableStrategies() []string {
	names := make([]string, numStrategies)
	copy(names, strategyNames[:])
	return names
}

// Strategies is the set of enabled strategies of a layer.
// It is a value type, so a layer's set cannot be changed through a copy held elsewhere.
type Strategies struct {
	enabled [numStrategies]bool
}

// AllStrategies returns a set with every strategy enabled.
func AllStrategies() Strategies {
	var s Strategies
	for i := range s.enabled {
		s.enabled[i] = true
	}
	return s
}

// NewStrategies returns a set with exactly the given strategies enabled.
func NewStrategies(enabled ...Strategy) Strategies {
	var s Strategies
	for _, e := range enabled {
		if e >= 0 && e < numStrategies {
			s.enabled[e] = true
		}
	}
	return s
}

// ParseStrategies builds a set from a name to flag mapping.
// A nil mapping enables every strategy, names missing from a non-nil mapping are disabled,
// and unknown names are an error.
func ParseStrategies(m map[string]bool) (Strategies, error) {
	if m == nil {
		return AllStrategies(), nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var s Strategies
	for _, name := range names {
		st, err := ParseStrategy(name)
		if err != nil {
			return Strategies{}, err
		}
		s.enabled[st] = m[name]
	}
	return s, nil
}

func (s Strategies) Enabled(st Strategy) bool {
	if st < 0 || st >= numStrategies {
		return false
	}
	return s.enabled[st]
}

// Active returns the enabled strategies in output order.
func (s Strategies) Active() []Strategy {
	active := make([]Strategy, 0, numStrategies)
	for i, e := range s.enabled {
		if e {
			active = append(active, Strategy(i))
		}
	}
	return active
}

// NumPerspectives is the number of enabled strategies.
func (s Strategies) NumPerspectives() int {
	n := 0
	for _, e := range s.enabled {
		if e {
			n++
		}
	}
	return n
}

// Map returns the set as a name to flag mapping containing every recognized strategy.
func (s Strategies) Map() map[string]bool {
	m := make(map[string]bool, numStrategies)
	for i, e := range s.enabled {
		m[strategyNames[i]] = e
	}
	return m
}

func (s Strategies) String() string {
	names := make([]string, 0, numStrategies)
	for _, st := range s.Active() {
		names = append(names, st.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}
