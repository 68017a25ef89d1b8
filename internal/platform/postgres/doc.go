// Package postgres provides PostgreSQL implementations of the store
// interfaces. All job state transitions are single guarded UPDATE
// statements; concurrent workers race on the guard, not on row locks.
package postgres
