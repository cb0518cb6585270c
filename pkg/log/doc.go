/*
Package log provides structured logging for agentcage using zerolog.

It wraps zerolog to give every component a component-scoped child logger
(WithComponent, WithSandboxID, WithAgentID) plus package-level helpers for
the common case. Output is JSON by default (for ingestion by a log
pipeline) or a human console writer when configured for interactive use.

Initialize once, near process start:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("sandbox-manager")
	logger.Info().Str("sandbox_id", id).Msg("spawned")
*/
package log
