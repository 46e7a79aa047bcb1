package attention

import (
	"math"
	"sort"
)

// Scored is a stimulus with its salience breakdown and, after multi-head
// attention, its final weight.
type Scored struct {
	Stimulus Stimulus `json:"stimulus"`
	Features Features `json:"features"`
	Salience float64  `json:"salience"`
	Weight   float64  `json:"weight"`
}

// headMetric returns the sub-metric head h scores with. Heads cycle through
// relevance, novelty, emotional intensity and urgency; heads beyond the
// first cycle score uniformly.
func headMetric(h int) func(Features) float64 {
	switch {
	case h >= 4:
		return func(Features) float64 { return 1 }
	case h == 0:
		return func(f Features) float64 { return f.Relevance }
	case h == 1:
		return func(f Features) float64 { return f.Novelty }
	case h == 2:
		return func(f Features) float64 { return f.Emotional }
	default:
		return func(f Features) float64 { return f.Urgency }
	}
}

// MultiHeadAttention weights inputs with the given number of heads. Each head
// scores every input with its metric scaled by 1/sqrt(heads) and applies a
// softmax; the final weight is salience * n * mean head probability, so a
// uniform distribution leaves salience unchanged. The result is sorted by
// weight, descending.
func MultiHeadAttention(inputs []Scored, heads int) []Scored {
	if heads < 1 {
		heads = 1
	}
	out := append([]Scored(nil), inputs...)
	if len(out) == 0 {
		return out
	}

	n := float64(len(out))
	scale := 1 / math.Sqrt(float64(heads))
	mean := make([]float64, len(out))
	logits := make([]float64, len(out))
	for h := 0; h < heads; h++ {
		metric := headMetric(h)
		for i, in := range out {
			logits[i] = metric(in.Features) * scale
		}
		for i, p := range softmax(logits) {
			mean[i] += p / float64(heads)
		}
	}
	for i := range out {
		out[i].Weight = out[i].Salience * n * mean[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Stimulus.ID < out[j].Stimulus.ID
	})
	return out
}

func softmax(xs []float64) []float64 {
	peak := math.Inf(-1)
	for _, x := range xs {
		peak = math.Max(peak, x)
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
