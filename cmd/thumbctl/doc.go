// Command thumbctl extracts video thumbnails from the command line using
// the same engine, cache and configuration as the server.
//
// Usage:
//
//	thumbctl <command> [flags] [args]
//
// Commands:
//
//	extract  Extract thumbnails for each url argument, or for each line of
//	         stdin when no urls are given. Results are printed as JSON in
//	         input order, followed by a summary. With -out, the decoded
//	         images are also written to a directory.
//
//	clear    Remove every cached thumbnail of a namespace (the configured
//	         default namespace when omitted).
//
//	probe    Report whether frames can be captured, whether the cache is
//	         usable and whether direct resizing is available.
//
// Environment:
//
//	CACHE_BACKEND, CACHE_DIR, REDIS_ADDR, FFMPEG_PATH, FFPROBE_PATH,
//	DEFAULT_NAMESPACE, THUMBNAIL_WORKERS, LOG_LEVEL
//
// Output is indented when stdout is a terminal and compact otherwise, so
// it can be piped into jq.
package main
