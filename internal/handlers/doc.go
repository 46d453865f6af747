// Package handlers provides the HTTP handlers of the thumbnail API.
//
// It includes handlers for:
//   - Single-source and batch thumbnail extraction
//   - Cache namespace clearing
//   - Serving and revoking handle references
//   - Capabilities, health, readiness and version
package handlers
