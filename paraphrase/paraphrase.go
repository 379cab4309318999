// Package paraphrase generates synthetic sentence pairs for exercising matching layers.
package paraphrase

import (
	"math/rand"
)

// GenPair generates a batch of (seqLen, width) left sentences of random binary embeddings,
// and right sentences that paraphrase them: each right sentence is its left sentence
// rotated by a random number of steps with Gaussian noise of the given scale added.
func GenPair(r *rand.Rand, batch, seqLen, width int, noise float64) ([][][]float64, [][][]float64) {
	left := make([][][]float64, batch)
	right := make([][][]float64, batch)
	for b := 0; b < batch; b++ {
		left[b] = genSentence(r, seqLen, width)

		shift := r.Intn(seqLen)
		right[b] = make([][]float64, seqLen)
		for i := 0; i < seqLen; i++ {
			right[b][i] = make([]float64, width)
			src := left[b][(i+shift)%seqLen]
			for j := 0; j < width; j++ {
				right[b][i][j] = src[j] + noise*r.NormFloat64()
			}
		}
	}
	return left, right
}

// GenUnrelated generates a batch of left and right sentences drawn independently.
func GenUnrelated(r *rand.Rand, batch, seqLen, width int) ([][][]float64, [][][]float64) {
	left := make([][][]float64, batch)
	right := make([][][]float64, batch)
	for b := 0; b < batch; b++ {
		left[b] = genSentence(r, seqLen, width)
		right[b] = genSentence(r, seqLen, width)
	}
	return left, right
}

// genSentence returns seqLen steps of random binary embeddings.
// Every step has at least one non-zero entry so that cosine similarity is defined.
func genSentence(r *rand.Rand, seqLen, width int) [][]float64 {
	s := make([][]float64, seqLen)
	for i := 0; i < seqLen; i++ {
		s[i] = make([]float64, width)
		for j := 0; j < width; j++ {
			s[i][j] = float64(r.Intn(2))
		}
		s[i][r.Intn(width)] = 1
	}
	return s
}
