// Package manifest normalizes raw Cargo.toml data into canonical package
// records.
//
// Normalization resolves workspace field inheritance (version.workspace =
// true), determines publishability, and reduces each dependency table to the
// set of dependencies that actually live inside the workspace. Only
// path-resolvable dependencies count; a registry dependency is external even
// when its name collides with a member.
package manifest
