// Package domain defines the shared data model of the assignment engine:
// resources (the allocatable consultants), assignments (one agent bound to
// one resource), reassignment records (the append-only lineage of rebinds),
// and the sentinel error kinds every layer agrees on.
//
// Types here are plain data. Behavior lives in internal/engine; durability
// lives in internal/store.
package domain
