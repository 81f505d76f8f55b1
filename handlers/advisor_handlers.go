package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"promptsmith/advisor"
	"promptsmith/shared"
)

type advisorResponse struct {
	ID    string           `json:"id"`
	State advisor.Snapshot `json:"state"`
}

func (h *Handler) HandleCreateAdvisor(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if !h.decode(w, r, &body) {
		return
	}
	adv := advisor.New(h.Runner, h.workflowRequest(body), advisor.WithMetrics(h.Metrics), advisor.WithLogger(h.logger))
	id := h.advisors.Create(adv)
	writeJSON(w, http.StatusCreated, advisorResponse{ID: id, State: adv.Snapshot()})
}

func (h *Handler) advisor(w http.ResponseWriter, r *http.Request) (string, *advisor.Advisor, bool) {
	id := chi.URLParam(r, "id")
	adv, ok := h.advisors.Get(id)
	if !ok {
		h.writeError(w, fmt.Errorf("advisor %s: %w", id, errSessionNotFound), nil)
		return "", nil, false
	}
	return id, adv, true
}

func (h *Handler) HandleGetAdvisor(w http.ResponseWriter, r *http.Request) {
	id, adv, ok := h.advisor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, advisorResponse{ID: id, State: adv.Snapshot()})
}

type analyzeAllBody struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// HandleAnalyzeAll analyzes both prompts concurrently. Track failures are
// reported inside each track of the state.
func (h *Handler) HandleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	id, adv, ok := h.advisor(w, r)
	if !ok {
		return
	}
	var body analyzeAllBody
	if !h.decode(w, r, &body) {
		return
	}
	snap, err := adv.AnalyzeAll(detached(r), body.System, body.User)
	if err != nil && statusFor(err) == http.StatusBadRequest {
		h.writeError(w, err, advisorResponse{ID: id, State: snap})
		return
	}
	writeJSON(w, http.StatusOK, advisorResponse{ID: id, State: snap})
}

type analyzeBody struct {
	PromptText string `json:"promptText"`
}

func (h *Handler) HandleAnalyzeTrack(w http.ResponseWriter, r *http.Request) {
	id, adv, ok := h.advisor(w, r)
	if !ok {
		return
	}
	pt, err := shared.ParsePromptType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	var body analyzeBody
	if !h.decode(w, r, &body) {
		return
	}
	_, err = adv.Analyze(detached(r), pt, body.PromptText)
	h.respondAdvisor(w, id, adv, err)
}

func (h *Handler) HandleApplyTrack(w http.ResponseWriter, r *http.Request) {
	id, adv, ok := h.advisor(w, r)
	if !ok {
		return
	}
	pt, err := shared.ParsePromptType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	_, err = adv.Apply(detached(r), pt)
	h.respondAdvisor(w, id, adv, err)
}

func (h *Handler) respondAdvisor(w http.ResponseWriter, id string, adv *advisor.Advisor, err error) {
	resp := advisorResponse{ID: id, State: adv.Snapshot()}
	if err != nil {
		h.writeError(w, err, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
