// Package storage is the task store: the single durable table of likeboost
// tasks.
//
// Drivers:
//   - sqlite   (default, modernc.org/sqlite, pure Go)
//   - postgres (pgx pool)
//
// Schema changes live in migrations/<driver> and are applied on Open.
package storage
