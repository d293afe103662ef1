// Package tasks holds the background jobs: mailing magic links, pruning
// expired sessions and sign-in links, and syncing the reference catalogues.
//
// Tasks are registered on a job.Manager (River) in production and on a
// job.Inline runner in tests.
package tasks
