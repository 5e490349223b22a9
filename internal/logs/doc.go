// Package logs reads dayrun's run and day log files for operators.
//
// Last returns the final lines of a file with bounded memory, Follow streams
// lines appended afterwards until the context ends, and Locate finds the
// newest log written for a day. "dayrun logs" is built on these.
package logs
