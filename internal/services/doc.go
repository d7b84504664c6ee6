// Package services provides the error taxonomy, retry helpers, and
// context plumbing shared by every pipeline component.
package services
