// Package httpapi exposes run creation, approval and the read-side over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/auth"
	"github.com/adpilot/engine/internal/domain"
	"github.com/adpilot/engine/internal/workflow"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Pipeline   *workflow.Pipeline
	Approvals  *workflow.Approvals
	Engine     *workflow.Engine
	Auth       workflow.Authenticator
	Businesses workflow.BusinessLookup
	Log        *zap.Logger

	// Ping checks storage health for /healthz.
	Ping func(ctx context.Context) error
}

// CreateRunBody is the body for POST /api/v1/runs. The caller becomes the
// run's TriggeredBy.
type CreateRunBody struct {
	BusinessID string                   `json:"business_id"`
	Trigger    domain.TriggerType       `json:"trigger_type"`
	Current    []domain.MetricsSnapshot `json:"current_metrics,omitempty"`
	Previous   []domain.MetricsSnapshot `json:"previous_metrics,omitempty"`
	Anomalies  []domain.Anomaly         `json:"anomalies,omitempty"`
}

// ApproveBody is the body for POST /api/v1/runs/approve.
type ApproveBody struct {
	RunID  string                  `json:"run_id"`
	Action domain.ApprovalDecision `json:"action"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			h.Log.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateRun handles POST /api/v1/runs.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	caller, err := h.Auth.Authenticate(r.Context(), auth.BearerToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body CreateRunBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: domain.ErrMissingField.Code, Message: "invalid request body"})
		return
	}
	if body.BusinessID == "" {
		h.writeError(w, r, domain.NewEngineError(domain.ErrMissingField.Code, "business_id is required"))
		return
	}
	if err := h.requireOwner(r.Context(), caller, body.BusinessID); err != nil {
		h.writeError(w, r, err)
		return
	}

	run, err := h.Pipeline.CreateRun(r.Context(), workflow.CreateRunRequest{
		BusinessID: body.BusinessID,
		UserID:     caller,
		Trigger:    body.Trigger,
		Current:    body.Current,
		Previous:   body.Previous,
		Anomalies:  body.Anomalies,
	})
	if err != nil {
		if workflow.IsPipelineFailure(err) && run != nil {
			h.Log.Error("run failed", zap.String("run_id", run.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, APIError{
				Code:    domain.ErrPipelineFailed.Code,
				Message: "run failed: " + run.ErrorMessage,
				RunID:   run.ID,
			})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// Approve handles POST /api/v1/runs/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var body ApproveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: domain.ErrMissingField.Code, Message: "invalid request body"})
		return
	}

	res, err := h.Approvals.Decide(r.Context(), workflow.DecideRequest{
		RunID:  body.RunID,
		Action: body.Action,
		Token:  auth.BearerToken(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.ownedRun(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListEvents handles GET /api/v1/runs/{runID}/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	run, err := h.ownedRun(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.Engine.Events(r.Context(), run.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []domain.RunEventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ownedRun loads the path's run and checks the caller owns its business,
// in the same order as the approval gate.
func (h *Handler) ownedRun(r *http.Request) (*domain.AutomationRun, error) {
	run, err := h.Engine.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		return nil, err
	}
	caller, err := h.Auth.Authenticate(r.Context(), auth.BearerToken(r))
	if err != nil {
		return nil, err
	}
	if err := h.requireOwner(r.Context(), caller, run.BusinessID); err != nil {
		return nil, err
	}
	return run, nil
}

func (h *Handler) requireOwner(ctx context.Context, caller, businessID string) error {
	biz, err := h.Businesses.GetBusiness(ctx, businessID)
	if err != nil {
		return err
	}
	if biz.OwnerUserID != caller {
		return domain.ErrPermissionDenied
	}
	return nil
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(code int) int {
	switch code {
	case domain.ErrMissingField.Code,
		domain.ErrInvalidDecision.Code,
		domain.ErrInvalidTrigger.Code,
		domain.ErrNotAwaiting.Code,
		domain.ErrApprovalNotReqd.Code,
		domain.ErrInvalidSnapshots.Code,
		domain.ErrNoSnapshots.Code,
		domain.ErrInvalidTransition.Code,
		domain.ErrRunTerminal.Code:
		return http.StatusBadRequest
	case domain.ErrUnauthenticated.Code:
		return http.StatusUnauthorized
	case domain.ErrPermissionDenied.Code:
		return http.StatusForbidden
	case domain.ErrRunNotFound.Code, domain.ErrBusinessNotFound.Code:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Server-side failures get a generic message; the
// detail goes to the log only.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var engErr *domain.EngineError
	if errors.As(err, &engErr) {
		status := statusFor(engErr.Code)
		if status != http.StatusInternalServerError {
			writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
			return
		}
	}
	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
