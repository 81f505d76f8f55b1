package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"promptsmith/architect"
	"promptsmith/shared"
)

type architectResponse struct {
	ID    string             `json:"id"`
	State architect.Snapshot `json:"state"`
}

func (h *Handler) newArchitect(req shared.WorkflowRequest) *architect.Architect {
	return architect.New(h.Runner, req,
		architect.WithMetrics(h.Metrics),
		architect.WithLogger(h.logger),
	)
}

// HandleCreateArchitect creates a workflow instance for the posted request.
func (h *Handler) HandleCreateArchitect(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if !h.decode(w, r, &body) {
		return
	}
	a := h.newArchitect(h.workflowRequest(body))
	id := h.architects.Create(a)
	h.logger.Info("Architect session created", zap.String("id", id))
	writeJSON(w, http.StatusCreated, architectResponse{ID: id, State: a.Snapshot()})
}

func (h *Handler) architect(w http.ResponseWriter, r *http.Request) (string, *architect.Architect, bool) {
	id := chi.URLParam(r, "id")
	a, ok := h.architects.Get(id)
	if !ok {
		h.writeError(w, fmt.Errorf("architect %s: %w", id, errSessionNotFound), nil)
		return "", nil, false
	}
	return id, a, true
}

func (h *Handler) HandleGetArchitect(w http.ResponseWriter, r *http.Request) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, architectResponse{ID: id, State: a.Snapshot()})
}

// HandleResetArchitect replaces the request and clears the workflow.
func (h *Handler) HandleResetArchitect(w http.ResponseWriter, r *http.Request) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	var body requestBody
	if !h.decode(w, r, &body) {
		return
	}
	snap, err := a.Reset(h.workflowRequest(body))
	h.respondArchitect(w, id, snap, err)
}

// HandleGetDirectives runs step 1. A body, when present, replaces the
// request first.
func (h *Handler) HandleGetDirectives(w http.ResponseWriter, r *http.Request) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	var body requestBody
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Description) != "" {
		if snap, err := a.Reset(h.workflowRequest(body)); err != nil {
			h.respondArchitect(w, id, snap, err)
			return
		}
	}
	snap, err := a.GetDirectives(detached(r))
	h.respondArchitect(w, id, snap, err)
}

func (h *Handler) HandleGeneratePrompt(w http.ResponseWriter, r *http.Request) {
	h.architectAction(w, r, (*architect.Architect).GeneratePrompt)
}

func (h *Handler) HandleAnalyzeDraft(w http.ResponseWriter, r *http.Request) {
	h.architectAction(w, r, (*architect.Architect).AnalyzeDraft)
}

func (h *Handler) HandleApplyAdvice(w http.ResponseWriter, r *http.Request) {
	h.architectAction(w, r, (*architect.Architect).ApplyAdvice)
}

func (h *Handler) HandleAutomate(w http.ResponseWriter, r *http.Request) {
	h.architectAction(w, r, (*architect.Architect).Automate)
}

func (h *Handler) architectAction(w http.ResponseWriter, r *http.Request, action func(*architect.Architect, context.Context) (architect.Snapshot, error)) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	snap, err := action(a, detached(r))
	h.respondArchitect(w, id, snap, err)
}

type directiveBody struct {
	Text string `json:"text"`
}

func (h *Handler) HandleEditDirective(w http.ResponseWriter, r *http.Request) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	var body directiveBody
	if !h.decode(w, r, &body) {
		return
	}
	snap, err := a.EditDirective(index, body.Text)
	h.respondArchitect(w, id, snap, err)
}

func (h *Handler) HandleRemoveDirective(w http.ResponseWriter, r *http.Request) {
	id, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	index, ok := h.index(w, r)
	if !ok {
		return
	}
	snap, err := a.RemoveDirective(index)
	h.respondArchitect(w, id, snap, err)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.writeError(w, &shared.ValidationError{Field: "index", Message: "directive index must be a number"}, nil)
		return 0, false
	}
	return i, true
}

type publishBody struct {
	Name string `json:"name"`
}

type publishResponse struct {
	CommitHash string `json:"commitHash"`
}

// HandlePublish commits the final prompt of a finished workflow to the
// prompt library.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	_, a, ok := h.architect(w, r)
	if !ok {
		return
	}
	var body publishBody
	if !h.decode(w, r, &body) {
		return
	}
	snap := a.Snapshot()
	if !snap.IsCompleted(architect.StepApply) {
		h.writeError(w, fmt.Errorf("%w: the final prompt is not ready", architect.ErrOutOfOrder), snap)
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = snap.Request.Description
	}
	hash, err := h.Library.Publish(name, snap.Artifacts.FinalPrompt, "Add system prompt: "+name)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, publishResponse{CommitHash: hash})
}

// respondArchitect writes the snapshot. Step failures are part of the
// snapshot; err only carries a refused action.
func (h *Handler) respondArchitect(w http.ResponseWriter, id string, snap architect.Snapshot, err error) {
	if err != nil {
		h.writeError(w, err, architectResponse{ID: id, State: snap})
		return
	}
	writeJSON(w, http.StatusOK, architectResponse{ID: id, State: snap})
}
