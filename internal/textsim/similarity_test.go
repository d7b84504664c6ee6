package textsim_test

import (
	"testing"

	"reel/internal/textsim"
)

func TestCosineSimilarityIdenticalText(t *testing.T) {
	a := textsim.NewFingerprint("the quick brown fox jumps over the lazy dog")
	b := textsim.NewFingerprint("the quick brown fox jumps over the lazy dog")
	score := textsim.CosineSimilarity(a, b)
	if score < 0.999 {
		t.Fatalf("expected near-1 similarity for identical text, got %f", score)
	}
}

func TestCosineSimilarityDisjointText(t *testing.T) {
	a := textsim.NewFingerprint("alpha bravo charlie delta")
	b := textsim.NewFingerprint("echo foxtrot golf hotel")
	if score := textsim.CosineSimilarity(a, b); score != 0 {
		t.Fatalf("expected zero similarity for disjoint text, got %f", score)
	}
}

func TestCosineSimilarityNilFingerprint(t *testing.T) {
	a := textsim.NewFingerprint("some transcript text here")
	if score := textsim.CosineSimilarity(a, nil); score != 0 {
		t.Fatalf("expected zero similarity against nil, got %f", score)
	}
	if score := textsim.CosineSimilarity(nil, nil); score != 0 {
		t.Fatalf("expected zero similarity for nil pair, got %f", score)
	}
}

func TestNewFingerprintFiltersShortTokens(t *testing.T) {
	fp := textsim.NewFingerprint("a an to of in it")
	if fp != nil {
		t.Fatalf("expected nil fingerprint for all-short tokens, got %d tokens", fp.TokenCount())
	}
}

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	tokens := textsim.Tokenize("Hello, World! Testing-123 ok")
	want := []string{"hello", "world", "testing", "123"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %v", len(want), tokens)
	}
	for i, tok := range want {
		if tokens[i] != tok {
			t.Fatalf("token %d: expected %q, got %q", i, tok, tokens[i])
		}
	}
}

func TestWithIDFDownweightsCommonTerms(t *testing.T) {
	corpus := textsim.NewCorpus()
	docs := []string{
		"meeting transcript about quarterly revenue figures",
		"meeting transcript about engineering roadmap",
		"meeting transcript about hiring plans",
		"interview recording about distributed systems",
	}
	fps := make([]*textsim.Fingerprint, 0, len(docs))
	for _, doc := range docs {
		fp := textsim.NewFingerprint(doc)
		corpus.Add(fp)
		fps = append(fps, fp)
	}
	idf := corpus.IDF()
	if idf == nil {
		t.Fatal("expected IDF weights")
	}

	// "meeting" appears in 3 of 4 documents so its weight drops below
	// the weight of the rarer "revenue".
	if idf["meeting"] >= idf["revenue"] {
		t.Fatalf("expected common term to weigh less: meeting=%f revenue=%f", idf["meeting"], idf["revenue"])
	}

	weighted := fps[0].WithIDF(idf)
	if weighted == nil {
		t.Fatal("expected weighted fingerprint")
	}
	raw := textsim.CosineSimilarity(fps[0], fps[1])
	adjusted := textsim.CosineSimilarity(fps[0].WithIDF(idf), fps[1].WithIDF(idf))
	if adjusted >= raw {
		t.Fatalf("expected IDF weighting to reduce similarity driven by boilerplate: raw=%f adjusted=%f", raw, adjusted)
	}
}

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  textsim.Tier
	}{
		{0.99, textsim.TierDirect},
		{0.95, textsim.TierDirect},
		{0.90, textsim.TierAdapt},
		{0.80, textsim.TierAdapt},
		{0.70, textsim.TierHint},
		{0.60, textsim.TierHint},
		{0.30, textsim.TierUnrelated},
		{0, textsim.TierUnrelated},
	}
	for _, tc := range cases {
		if got := textsim.TierForScore(tc.score); got != tc.want {
			t.Errorf("TierForScore(%f): expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Whisper Large-V3", "whisper_large-v3"},
		{"  pt-BR  ", "pt-br"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tc := range cases {
		if got := textsim.SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}
