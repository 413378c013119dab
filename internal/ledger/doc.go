// Package ledger models the shared task ledger: the durable record of every
// media-processing task, its lifecycle status, and the lease that grants one
// worker instance exclusive processing rights.
//
// All mutation happens through single-record conditional writes. A write
// carries the status and lease owner the caller last read; when the stored
// values no longer match, the write is rejected with a lease conflict and the
// caller must re-read. Workers on separate hosts coordinate only through this
// compare-and-swap primitive.
//
// Two implementations of Client ship with the package: the SQLite-backed
// Store used in production and an in-memory fake for tests.
package ledger
