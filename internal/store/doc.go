// Package store is the SQLite persistence provider behind the assignment
// engine: resource and assignment rows, the append-only reassignment
// lineage, the allocation log, and - most importantly - the allocation
// ledger's atomic commits.
//
// Counter columns (allocation_count, current_load, last_allocated_at) are
// mutated only inside CommitAllocation, CommitReassignment and the
// completion/cancellation transitions. Everything else reads them.
//
// All timestamps are stored as RFC 3339 UTC text, which sorts
// lexicographically and keeps window comparisons inside SQL.
package store
