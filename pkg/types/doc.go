// Package types holds the data model shared across agentcage's
// subsystems — sandbox specs and instances, isolation contexts, network
// rules, resource snapshots, audit entries, trajectories, circuit breaker
// state, build snapshots, classified errors, sync queue entries, and the
// VSOCK frame constants — plus the sentinel errors components wrap with
// context via fmt.Errorf and callers match with errors.Is.
package types
