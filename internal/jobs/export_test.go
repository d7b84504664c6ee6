package jobs

// SetOwnerLookup overrides the owner resolver and returns a restore func.
func SetOwnerLookup(fn func() string) func() {
	prev := currentOwner
	currentOwner = fn
	return func() { currentOwner = prev }
}
