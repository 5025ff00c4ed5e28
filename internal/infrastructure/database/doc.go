// Package database provides SQLite connection management for Wearlink Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy-timeout pragmas
//   - Schema migrations from embedded SQL files
//   - Health checks and graceful shutdown
//
// SQLite is configured with a single writer connection, which matches
// SQLite's locking model and keeps the persistence layer simple for the
// small record set this daemon manages.
package database
