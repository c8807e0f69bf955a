package textindex

import (
	"hash/fnv"
	"math"
)

// Dimensions is the length of vectors produced by Embed.
const Dimensions = 64

// Embed turns text into an L2-normalized bag-of-words vector using the
// hashing trick. Texts without content words produce nil.
func Embed(text string) []float32 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	vec := make([]float32, Dimensions)
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[sum%Dimensions] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Cosine returns the cosine similarity of two equal-length vectors, or 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
