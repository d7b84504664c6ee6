package textsim

// Reuse tier thresholds for cached derivation results.
const (
	// DirectReuseThreshold marks near-identical content safe for direct reuse.
	DirectReuseThreshold = 0.95
	// AdaptReuseThreshold marks content close enough to reuse after adjustment.
	AdaptReuseThreshold = 0.80
	// HintThreshold marks content related enough to surface as a hint only.
	HintThreshold = 0.60
)

// Tier buckets a similarity score into a reuse decision.
type Tier string

const (
	TierDirect    Tier = "direct"
	TierAdapt     Tier = "adapt"
	TierHint      Tier = "hint"
	TierUnrelated Tier = "unrelated"
)

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// TierForScore maps a similarity score to its reuse tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= DirectReuseThreshold:
		return TierDirect
	case score >= AdaptReuseThreshold:
		return TierAdapt
	case score >= HintThreshold:
		return TierHint
	default:
		return TierUnrelated
	}
}
