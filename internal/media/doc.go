// Package media opens video sources and captures still frames from them.
//
// A source is driven through an Element, a hidden, non-autoplaying media
// element with an asynchronous event stream. The Loader opens a source and
// waits for it to become seek-ready, and the Capturer seeks an open Session
// and reads back the displayed frame.
//
// The production Element is FFmpegElement, which answers readiness with
// ffprobe and seeks by decoding a single frame with ffmpeg. Tests use the
// scriptable fake in package mediatest.
//
// # Event ordering
//
// Readiness is single-fire: Loader.Open consumes the first EventReady and
// any later readiness signals are skipped by the Capturer. A seek is
// complete when EventSeeked arrives. Some runtimes only report a settled
// seek after a play/pause cycle, so Capture always plays and pauses before
// seeking.
//
// Seeks on one Session must not overlap. Callers capture one offset at a
// time.
package media
