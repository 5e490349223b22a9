// Package main hosts the dayrun CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, applies --set overrides,
// and hands the heavy lifting to the internal packages: "run" drives the
// orchestrator with the configured command payload, "halt" and "restart"
// manage the stop marker, "status" reports the run lock and day records,
// "reset" returns days to pending, "logs" prints or follows run and day
// logs, and "config" writes, shows and validates the configuration file.
//
// Commands print results; the internal packages only log.
package main
