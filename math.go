package bimpm

import (
	"github.com/gonum/blas/blas64"
	"github.com/gonum/floats"
)

const (
	machineEpsilon     = 2.2e-16
	machineEpsilonSqrt = 1e-8 // math.Sqrt(machineEpsilon)
)

func dot(u, v []float64) float64 {
	return blas64.Dot(len(u), blas64.Vector{Inc: 1, Data: u}, blas64.Vector{Inc: 1, Data: v})
}

// cosine returns the cosine similarity of u and v, or 0 if either has zero norm.
func cosine(u, v []float64) float64 {
	norms := floats.Norm(u, 2) * floats.Norm(v, 2)
	if norms < machineEpsilon {
		return 0
	}
	return dot(u, v) / norms
}

func MakeTensor2(n, m int) [][]float64 {
	t := make([][]float64, n)
	for i := 0; i < len(t); i++ {
		t[i] = make([]float64, m)
	}
	return t
}
