// Package state persists one record per processing day.
//
// A record carries the day's status (pending, running, success, failed), the
// attempt counter and timestamps the retry policy reads, and the last error.
// An absent record is equivalent to pending with zero attempts. Three
// backends share the Store interface: SQLite (the default, durable across
// crashes through WAL with synchronous=FULL), a directory of YAML files
// written atomically, and an in-memory map for tests.
package state
