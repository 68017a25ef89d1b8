// Package store defines the persistence interfaces for the application's
// domain entities. Implementations live under internal/platform; consumers
// depend only on these interfaces so they can be backed by Postgres in
// production and by in-memory mocks in tests.
//
// Job updates are whole-row, last-writer-wins. Conditional transitions
// (Claim, ReleaseForRetry, RequestNoteRegeneration) are expressed as single
// guarded UPDATE statements rather than cross-statement transactions, so the
// interfaces deliberately omit a WithTx escape hatch.
package store
