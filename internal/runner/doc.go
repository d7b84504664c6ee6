// Package runner executes a single pipeline stage for a job.
//
// A stage run resolves the stage's declared inputs from prior lineage
// records, consults the result cache for cache-eligible stages, and
// otherwise invokes the stage's configured external command with the
// resolved inputs, a dedicated output directory, and a serialized config
// snapshot. Declared outputs are files named after the artifact inside the
// stage directory; mandatory outputs are validated after a zero exit.
// Failures are classified through the services error taxonomy using the
// process exit status and a tail of its stderr.
package runner
