// Package registry holds the static, ordered stage definitions for every
// workflow: which stages apply, what they depend on, what they produce, and
// which option keys their configuration schema accepts.
package registry
