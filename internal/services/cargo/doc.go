// Package cargo wraps the cargo command line for publishing and registry
// queries.
//
// The scheduler only sees small interfaces; this package supplies the real
// implementation that shells out to cargo. Command execution sits behind a
// Runner so tests can script outcomes without a toolchain installed.
package cargo
