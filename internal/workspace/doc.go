// Package workspace locates a Cargo workspace root and resolves its declared
// member patterns into concrete package directories.
//
// The root manifest's workspace.members list may mix literal relative paths
// and glob patterns such as "libs/*/lib". Resolution deduplicates matches and
// surfaces patterns that matched nothing as warnings rather than dropping
// them silently; an operator typo in a member pattern should be visible.
package workspace
