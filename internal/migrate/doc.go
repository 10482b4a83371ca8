// Package migrate applies a single SQL migration script to a database, once per invocation.
//
// A run is a linear pipeline: validate the target, acquire a connection handle, read the
// script, execute it as one unit, and release the handle. The handle is released exactly once
// on every path that acquired it. Each failure is terminal and typed: ConfigurationError,
// ScriptReadError or ExecutionError.
//
// The runner does not track which scripts were applied and executes whatever SQL it is given
// verbatim. Applying the same script twice is only safe if the SQL itself is guarded
// (CREATE TABLE IF NOT EXISTS and similar); that is the caller's responsibility.
package migrate
