// Package checkpoint persists which packages of a publish plan have already
// completed, so an interrupted run can resume without re-publishing.
//
// The record is a small TOML file under the workspace's target directory:
// human-inspectable, and safely discarded by deleting it. Writes are atomic
// (temp file + rename) so a crash mid-write never corrupts prior entries. A
// checkpoint binds to a specific plan through a sha256 fingerprint over the
// ordered name@version sequence; resuming against a workspace whose plan has
// changed fails loudly instead of silently mis-skipping packages.
package checkpoint
