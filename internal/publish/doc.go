// Package publish walks a dependency-ordered plan and drives the per-package
// publish action, one package at a time.
//
// Execution is strictly sequential: a package's action never starts before
// every action ahead of it has confirmed success, because a registry that has
// not yet seen a dependency can fail the dependent's publish. The checkpoint
// only advances after a confirmed success, so an interrupted action is
// conservatively retried on resume; idempotence of the retry is delegated to
// the already-published registry check.
package publish
