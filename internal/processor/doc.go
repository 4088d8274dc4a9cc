// Package processor orchestrates the recurring content engine: each
// trigger fire evaluates which scheduled items fall inside the lead/grace
// window, executes them in bounded concurrent batches with per-item retry,
// and persists every status transition. Companion passes keep the system
// healthy: backlog replenishment materializes future items from each
// schedule's recurrence pattern and the stale sweep fails pending items
// nobody picked up.
//
// The processor owns no goroutines of its own except the single delayed
// backlog retry; periodic scheduling belongs to internal/trigger and
// delivery of owner notifications to internal/notify via the event bus.
package processor
