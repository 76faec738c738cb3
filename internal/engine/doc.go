// Package engine implements the assignment pipeline: eligibility filtering,
// fairness scoring, capability matching, selection, atomic commit through the
// allocation ledger, and bounded reassignment with full lineage.
//
// The engine is invoked per request by any number of concurrent callers.
// Scoring runs on a point-in-time snapshot; correctness never depends on the
// snapshot staying valid, because the capacity rule is re-asserted inside the
// ledger's commit transaction. A lost race surfaces as contention and the
// engine re-runs the whole pipeline - the eligible set may have changed.
//
// The engine owns no durable state. It consumes a Persistence implementation
// (internal/store in this repo), an availability predicate, and an audit
// emitter, all injected at construction.
package engine
