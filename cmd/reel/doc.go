// Command reel is the control-plane CLI for the media pipeline: it creates
// jobs, runs them through their workflow stages, and inspects job status,
// lineage, and the result cache.
package main
