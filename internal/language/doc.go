// Package language provides unified language code normalization and mapping.
//
// All language-related conversions (BCP 47 canonicalization, ISO 639-1,
// ISO 639-2, display names) are consolidated here to avoid duplication
// across the translation, subtitle formatting, and mux stages.
package language
