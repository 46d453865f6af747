/*
Package workers sizes the concurrency of batch thumbnail extraction.

Worker counts scale with runtime.GOMAXPROCS(0) rather than runtime.NumCPU(),
so a pod limited to two CPUs on a large node gets two CPUs' worth of
workers:

	n := workers.ForMixed(8)  // 1.5 per CPU, at most 8
	n := workers.ForIO(16)    // 2 per CPU, at most 16
	n := workers.ForCPU(4)    // 1 per CPU, at most 4

Extractions mostly wait on remote media and ffmpeg subprocesses, so the
batch runner sizes its fan-out with [ForIO].

# Overrides

The count can be pinned, still subject to the caller's cap:

  - the workers configuration key, applied through [SetOverride]
  - the THUMBNAIL_WORKERS environment variable

The configuration value wins when both are set.
*/
package workers
