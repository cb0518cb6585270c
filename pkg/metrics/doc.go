/*
Package metrics provides Prometheus metrics collection and exposition for
agentcage, plus a small component health registry backing /healthz.

Metrics are package-level Gauge/Counter/Histogram (Vec) values registered
against the default Prometheus registry at init time, following the same
"MustRegister in init(), Set/Observe inline at the call site" pattern used
throughout the rest of the module — there is no separate polling collector.
Call sites use metrics.NewTimer() + ObserveDuration for latency histograms.

Alerting guidance:

No sandboxes running but services expected:
  - Alert: agentcage_sandboxes_total{state="running"} == 0
  - Action: check sandbox manager logs and provider health

Circuit breaker stuck open:
  - Alert: agentcage_circuit_breaker_state > 0 for > 5m
  - Action: inspect the dependency the breaker protects

Growing sync queue:
  - Alert: agentcage_sync_queue_depth > 100
  - Action: check control-plane connectivity
*/
package metrics
