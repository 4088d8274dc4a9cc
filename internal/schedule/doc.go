// Package schedule holds the domain model for recurring content work:
// schedules, their pre-materialized items, the item lifecycle state
// machine, recurrence patterns, and due-window evaluation.
//
// Everything here is pure in-memory logic; persistence lives in
// internal/store and orchestration in internal/processor.
package schedule
