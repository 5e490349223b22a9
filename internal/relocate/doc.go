// Package relocate copies a finished day's working directory to its
// configured destinations.
//
// Each Rule pairs a Trigger (always, success, failure) with a Target. Targets
// are plain directories, zip archives (klauspost/compress) or object store
// prefixes (minio-go). Relocation failures are reported in the returned
// results and never alter the day's recorded status.
package relocate
