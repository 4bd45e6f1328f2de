// Package app wires the reconciliation engine, the upstream transport and the
// HTTP surface into one service with a single lifecycle, decoupled from any
// specific entrypoint like a CLI.
package app
