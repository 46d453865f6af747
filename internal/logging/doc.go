// Package logging provides a simple leveled logging interface for the
// thumbnail service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (per-phase timings)
//   - INFO: General operational messages
//   - WARN: Warning conditions (skipped offsets, cache write failures)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable and
// can be overridden at startup with SetLevel.
package logging
