// Package store provides SQLite-backed storage for saved application images.
//
// Every save appends a revision for the app (keyed by the root component's
// name). An image row carries:
//   - id: UUIDv7, so ids sort by save time
//   - revision: per-app counter starting at 1, never reused
//   - digest: hex SHA-256 of the image bytes
//   - kits: the catalog kits and checksums the image was written against
//
// Saving bytes identical to the latest revision does not add a revision.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Image bytes are the binary app format of package codec.
package store
