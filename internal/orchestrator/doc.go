// Package orchestrator drives jobs through their workflow's stage order.
//
// Stages within a job run strictly sequentially; separate jobs run
// concurrently up to the configured bound. Each run resolves its resume
// point from the checkpoint record, advances the checkpoint after every
// successful stage, and keeps the job row's status, heartbeat, and error
// classification current in the store. Cancellation is observed between
// stages and handed to the in-flight stage process with a grace period.
package orchestrator
