package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"promptsmith/shared"
)

var errDurableDisabled = errors.New("durable runs are disabled; enable temporal in the configuration")

type startRunBody struct {
	requestBody
	Publish bool   `json:"publish"`
	Name    string `json:"name"`
}

type runResponse struct {
	shared.RunRecord
	Done bool `json:"done"` // clients poll until true
}

// HandleStartRun starts a durable architect run and returns its workflow ID.
func (h *Handler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	if h.Starter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: errDurableDisabled.Error()})
		return
	}
	var body startRunBody
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Description) == "" {
		h.writeError(w, &shared.ValidationError{Field: "description", Message: "Please enter a description for the AI persona."}, nil)
		return
	}
	id, err := h.Starter.StartArchitect(r.Context(), shared.ArchitectInput{
		Request: h.workflowRequest(body.requestBody),
		Publish: body.Publish,
		Name:    body.Name,
	})
	if err != nil {
		h.logger.Error("Error starting workflow", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to start the architect run"})
		return
	}
	h.logger.Info("Started workflow", zap.String("workflowID", id))
	w.Header().Set("Location", "/api/runs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"workflowId": id})
}

// HandleGetRun returns the stored state of a run. A run that has not written
// its first record yet is reported as PENDING.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Runs.GetRun(r.Context(), id)
	if err != nil {
		if statusFor(err) == http.StatusNotFound && h.Starter != nil {
			writeJSON(w, http.StatusOK, runResponse{RunRecord: shared.RunRecord{WorkflowID: id, Status: shared.RunStatusPending}})
			return
		}
		h.writeError(w, err, nil)
		return
	}
	done := rec.Status == shared.RunStatusCompleted || rec.Status == shared.RunStatusFailed
	writeJSON(w, http.StatusOK, runResponse{RunRecord: rec, Done: done})
}

func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	if runs == nil {
		runs = []shared.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}
