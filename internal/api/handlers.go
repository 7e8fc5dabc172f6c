// Package api exposes the HTTP surface of the reports service: the report
// read contract consumed by the dashboard and the manual pipeline trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"example.com/reports/internal/domain"
	"example.com/reports/internal/pipeline"
)

// ReportStore reads the rollup mart.
type ReportStore interface {
	Report(ctx context.Context, customerID string) (*domain.UserReport, error)
}

// ReportHandler serves precomputed per-customer reports.
type ReportHandler struct {
	store ReportStore
}

// NewReportHandler builds a ReportHandler.
func NewReportHandler(store ReportStore) *ReportHandler {
	return &ReportHandler{store: store}
}

// RegisterRoutes wires endpoints to the mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports", h.report)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *ReportHandler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing customer_id parameter")
		return
	}

	report, err := h.store.Report(r.Context(), customerID)
	if err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no report for given customer_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// PipelineTrigger is the manual invocation path. It must behave identically
// to the scheduled path, so it simply calls the runner's RunOnce.
type PipelineTrigger interface {
	RunOnce(ctx context.Context) (pipeline.RunSummary, error)
}

// TriggerHandler exposes the manual pipeline trigger.
type TriggerHandler struct {
	runner PipelineTrigger
}

// NewTriggerHandler builds a TriggerHandler.
func NewTriggerHandler(runner PipelineTrigger) *TriggerHandler {
	return &TriggerHandler{runner: runner}
}

// RegisterRoutes wires endpoints to the mux.
func (h *TriggerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/pipeline/run", h.run)
	mux.HandleFunc("/healthz", healthz)
}

func (h *TriggerHandler) run(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	summary, err := h.runner.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			writeError(w, http.StatusConflict, "run_active", "a pipeline run is already in progress")
			return
		}
		writeError(w, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
