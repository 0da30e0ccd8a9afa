// Package app wires the POS client together: configuration, logging,
// telemetry, the license core, and the local HTTP API consumed by the
// POS screens.
package app
