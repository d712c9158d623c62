package storage

// Package storage persists users, scheduled emails, and an append-only audit
// trail of send attempts.
//
// Two drivers exist:
//   - "sqlite": the production backend (WAL journal, embedded migrations)
//   - "memory": mutex-guarded maps; used in tests and as a throwaway backend
//
// Scheduled emails are never physically deleted; cancellation and completed
// one-off sends only flip the active flag, so past items stay listable.
