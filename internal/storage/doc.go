// Package storage provides the post store used by the scheduler.
//
// Every driver implements the same whole-snapshot contract:
//   - LoadAll reads every post record
//   - SaveAll overwrites every post record in one write
//
// There is no row-level locking; callers serialize read-modify-write cycles.
package storage
