// Package cache stores reusable derivation results keyed by media identity.
//
// Entries live in a SQLite index next to a content-addressed payload store.
// Four layers are maintained: fingerprint, recognition, translation, and
// glossary. Lookups verify payload checksums before reuse; corrupt entries
// are evicted and recomputed rather than surfaced as failures. Writers
// coordinate through a file lock so concurrent processes never duplicate
// expensive work, and in-process callers are deduplicated with singleflight.
package cache
