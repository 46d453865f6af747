// Package thumbnail is the public entry point of the extraction engine.
//
// Engine.Extract resolves each requested offset of one source in order.
// Cached offsets are answered without touching the media; the first miss
// opens a media session that is shared by the remaining offsets and
// released exactly once when the call returns. Capture and encode failures
// drop only the affected offset, while load failures fail the whole call
// with an empty result.
//
// Cache keys follow the layout documented in package cache, so a namespace
// can be invalidated with Engine.ClearCache.
package thumbnail
