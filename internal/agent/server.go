package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// actionResponse is the wire form of an action invocation result.
type actionResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

func (a *Agent) routes(reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/actions/ping", a.handlePing).Methods(http.MethodPost)
	return r
}

// serveHTTP runs the operator API until the context is cancelled.
func (a *Agent) serveHTTP(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              a.settings.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *Agent) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n")) //nolint:errcheck
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.controller.CollectStatus(r.Context())
	if err != nil {
		a.log.Error("status collection failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.metrics.SetStatus(status.Kind)
	writeJSON(w, http.StatusOK, status)
}

// handlePing runs the connectivity action. Action failures are part of
// the protocol, not server errors: they come back as 200 with
// success=false, mirroring how action results are reported to operators.
func (a *Agent) handlePing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.settings.ExecTimeout)
	defer cancel()
	result, err := a.controller.Ping(ctx)
	if err != nil {
		a.log.Info("ping action failed", zap.String("reason", err.Error()))
		writeJSON(w, http.StatusOK, actionResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Success: true, Result: result})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
