package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reel/internal/fileutil"
	"reel/internal/logging"
)

// GlossaryTerm is one source/target term pair. Seen counts how many jobs
// contributed the pair, so frequent terms can outrank one-off suggestions.
type GlossaryTerm struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Seen   int    `json:"seen"`
}

func (m *Manager) glossaryPath(identity string) string {
	return filepath.Join(m.root, "glossary", identity+".json")
}

// LoadGlossary returns the accumulated terms for a media identity, sorted
// by source term. Missing files yield an empty glossary.
func (m *Manager) LoadGlossary(identity string) ([]GlossaryTerm, error) {
	if m == nil || strings.TrimSpace(identity) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(m.glossaryPath(identity))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read glossary: %w", err)
	}
	var terms []GlossaryTerm
	if err := json.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("cache: parse glossary: %w", err)
	}
	return terms, nil
}

// GlossaryChecksum fingerprints the accumulated glossary for an identity.
// Empty when no glossary exists yet, so derivations keyed on it miss once
// the glossary starts growing.
func (m *Manager) GlossaryChecksum(identity string) string {
	if m == nil || strings.TrimSpace(identity) == "" {
		return ""
	}
	sum, err := fileutil.HashFile(m.glossaryPath(identity))
	if err != nil {
		return ""
	}
	return sum
}

// MergeGlossary folds new terms into the stored glossary for an identity.
// Repeated source terms bump the seen count and take the newest target.
// The write is atomic and serialized across processes.
func (m *Manager) MergeGlossary(identity string, terms []GlossaryTerm) ([]GlossaryTerm, error) {
	if m == nil || strings.TrimSpace(identity) == "" || len(terms) == 0 {
		return nil, nil
	}
	if err := m.lock.Lock(); err != nil {
		return nil, fmt.Errorf("cache: acquire glossary lock: %w", err)
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil && m.logger != nil {
			m.logger.Warn("release glossary lock", logging.Error(err))
		}
	}()

	existing, err := m.LoadGlossary(identity)
	if err != nil {
		return nil, err
	}
	bySource := make(map[string]int, len(existing))
	merged := make([]GlossaryTerm, len(existing))
	copy(merged, existing)
	for i := range merged {
		bySource[merged[i].Source] = i
	}
	for _, term := range terms {
		source := strings.TrimSpace(term.Source)
		if source == "" {
			continue
		}
		if i, ok := bySource[source]; ok {
			merged[i].Seen++
			if target := strings.TrimSpace(term.Target); target != "" {
				merged[i].Target = target
			}
			continue
		}
		merged = append(merged, GlossaryTerm{
			Source: source,
			Target: strings.TrimSpace(term.Target),
			Seen:   1,
		})
		bySource[source] = len(merged) - 1
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Source < merged[j].Source })

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cache: encode glossary: %w", err)
	}
	if err := fileutil.WriteFileAtomic(m.glossaryPath(identity), data, 0o644); err != nil {
		return nil, fmt.Errorf("cache: write glossary: %w", err)
	}
	return merged, nil
}

// MergeGlossaryFile merges the terms produced by a glossary stage run.
// The file holds a JSON array of {source, target} objects.
func (m *Manager) MergeGlossaryFile(identity, path string) (int, error) {
	if m == nil {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("cache: read terms file: %w", err)
	}
	var terms []GlossaryTerm
	if err := json.Unmarshal(data, &terms); err != nil {
		return 0, fmt.Errorf("cache: parse terms file: %w", err)
	}
	merged, err := m.MergeGlossary(identity, terms)
	if err != nil {
		return 0, err
	}
	return len(merged), nil
}
