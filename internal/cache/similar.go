package cache

import (
	"context"
	"sort"
	"strings"

	"reel/internal/registry"
	"reel/internal/textsim"
)

// Match pairs a cache entry with its similarity to the probe text.
type Match struct {
	Entry *Entry
	Score float64
	Tier  textsim.Tier
}

// FindSimilar scores the probe text against stored similarity text for a
// layer and returns matches at or above the hint threshold, best first.
// Entries for excludeIdentity are skipped so a job never matches itself.
// IDF weights from the stored corpus damp boilerplate shared across
// transcripts.
func (m *Manager) FindSimilar(ctx context.Context, layer registry.CacheLayer, probeText, excludeIdentity string, limit int) ([]Match, error) {
	if m == nil {
		return nil, nil
	}
	probe := textsim.NewFingerprint(probeText)
	if probe == nil {
		return nil, nil
	}

	entries, err := m.collect(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE layer = ? AND current = 1 AND similarity_text IS NOT NULL`,
		string(layer))
	if err != nil {
		return nil, err
	}

	corpus := textsim.NewCorpus()
	corpus.Add(probe)
	type scored struct {
		entry *Entry
		fp    *textsim.Fingerprint
	}
	candidates := make([]scored, 0, len(entries))
	for _, entry := range entries {
		if excludeIdentity != "" && entry.MediaIdentity == excludeIdentity {
			continue
		}
		if strings.TrimSpace(entry.SimilarityText) == "" {
			continue
		}
		fp := textsim.NewFingerprint(entry.SimilarityText)
		if fp == nil {
			continue
		}
		corpus.Add(fp)
		candidates = append(candidates, scored{entry: entry, fp: fp})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	idf := corpus.IDF()
	weightedProbe := probe.WithIDF(idf)

	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		score := textsim.CosineSimilarity(weightedProbe, candidate.fp.WithIDF(idf))
		if score < textsim.HintThreshold {
			continue
		}
		matches = append(matches, Match{
			Entry: candidate.entry,
			Score: score,
			Tier:  textsim.TierForScore(score),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
