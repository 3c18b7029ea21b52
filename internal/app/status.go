package app

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// healthHandler reports process liveness.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// reportHandler serves the live execution report as JSON. Before the run
// starts there is nothing to report yet.
func (a *App) reportHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Report endpoint hit.", "remote_addr", r.RemoteAddr)

	eng := a.Engine()
	if eng == nil {
		http.Error(w, "run not started", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(eng.Report()); err != nil {
		a.logger.Error("Failed to encode report.", "error", err)
	}
}

// startStatusServer initializes and runs the status HTTP server.
func (a *App) startStatusServer(port int) {
	a.logger.Debug("Configuring status server.")
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/report", a.reportHandler)

	addr := fmt.Sprintf(":%d", port)

	go func() {
		a.logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Error("Status server failed", "error", err)
		}
	}()
}
