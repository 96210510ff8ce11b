package resolver

// selectVariant picks the variant best matching the requested tier from a
// ladder already sorted descending by bandwidth. An exact tier match wins;
// otherwise the variant whose height is closest to the tier's canonical
// height is chosen (ties go to the higher-bandwidth variant, which sorts
// first). Returns nil for an empty ladder.
func selectVariant(variants []QualityVariant, requested QualityTier) (*QualityVariant, bool) {
	if len(variants) == 0 {
		return nil, false
	}

	for i := range variants {
		if variants[i].Tier == requested {
			v := variants[i]
			return &v, true
		}
	}

	target := requested.CanonicalHeight()
	best := 0
	bestDiff := absInt(variants[0].Height - target)
	for i := 1; i < len(variants); i++ {
		if d := absInt(variants[i].Height - target); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	v := variants[best]
	return &v, false
}

// Select is the exported form of selectVariant for callers that need to
// re-run selection against a different tier, e.g. per-request overrides.
func Select(variants []QualityVariant, requested QualityTier) (*QualityVariant, bool) {
	return selectVariant(variants, requested)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
