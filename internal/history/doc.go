// Package history journals publish attempts in a local SQLite database.
//
// The journal is an audit trail: which sessions ran, what was attempted, how
// it ended, and how long it took. Resume correctness never depends on it;
// that is the checkpoint's job. Deleting the database only loses history.
package history
