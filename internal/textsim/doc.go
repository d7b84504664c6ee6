// Package textsim provides lexical fingerprinting and similarity scoring for
// transcript and subtitle text.
//
// The primary use cases are:
//   - Creating token-based fingerprints from transcript text for comparison
//   - Computing cosine similarity between fingerprints
//   - Bucketing similarity scores into reuse tiers for cache decisions
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process lowercases text, splits on non-alphanumeric characters,
// and filters tokens shorter than 3 characters.
package textsim
