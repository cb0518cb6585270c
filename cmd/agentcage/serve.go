package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuemby/agentcage/pkg/log"
	"github.com/cuemby/agentcage/pkg/metrics"
)

// serveCmd starts a small net/http server exposing /metrics and the
// /health, /ready, /live endpoints, mirroring the teacher's own
// pprof/health/metrics wiring in cmd/warren/main.go (minus the Raft
// cluster bring-up, which is out of scope here).
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /metrics and health endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("sandbox-manager", true, "ready")
		metrics.RegisterComponent("audit-trail", true, "ready")
		metrics.RegisterComponent("offline-engine", true, "ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		log.WithComponent("cli").Info().Str("addr", addr).Msg("serving metrics and health endpoints")
		fmt.Printf("listening on http://%s (/metrics, /health, /ready, /live)\n", addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:9090", "Address to listen on")
}
