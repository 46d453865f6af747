// Package cache implements the durable key to string store that holds
// encoded thumbnails between extractions.
//
// The store is deliberately simple. Values are opaque strings (embedded
// image payloads), there is no expiry and no eviction, and the last writer
// for a key wins. Entries live until a namespace is cleared.
//
// # Backends
//
// Storage is pluggable through the Backend interface:
//
//   - SQLiteBackend: a single table in a WAL-mode SQLite file (default)
//   - BoltBackend: a single bucket in a bbolt file
//   - RedisBackend: plain string keys in a shared Redis instance
//   - MemoryBackend: a process-local map, mostly for tests and the CLI
//
// Backends report capacity failures as ErrQuotaExceeded and missing keys
// as ErrNotFound.
//
// # Best-effort contract
//
// Cache wraps a Backend and never returns errors to its callers. Reads
// that fail are treated as misses, writes that fail are logged and
// reported as false, and when the store failed its startup self-test every
// operation is a no-op.
//
// # Keys
//
// Keys have the layout
//
//	{namespace}-cache-{size}|{offset}|{url}
//
// so that every entry of a namespace shares the prefix returned by
// NamespacePrefix. Clears match the prefix followed by the size field, and
// namespaces may not contain '|', so one namespace never clears another.
package cache
