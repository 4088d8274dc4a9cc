// Package exec provides the execution primitives the schedule processor
// composes: bounded retry with exponential backoff, hard-deadline timeout
// guards, fixed-size concurrent batching, and single-flight run locks.
package exec
