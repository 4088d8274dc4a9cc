// Package store persists schedules and their items in SQLite.
//
// Save rewrites a schedule's items inside one transaction, which is the
// serialization boundary the processor relies on for same-schedule writes.
package store
