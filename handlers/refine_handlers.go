package handlers

import (
	"net/http"

	"promptsmith/shared"
)

type refineBody struct {
	requestBody
	PromptText string `json:"promptText"`
	PromptType string `json:"promptType"`
}

type conversationBody struct {
	requestBody
	SystemPrompt string        `json:"systemPrompt"`
	History      []shared.Turn `json:"history"`
	Draft        string        `json:"draft"`
}

type refineResponse struct {
	Refined string `json:"refined"`
}

func (h *Handler) HandleRefine(w http.ResponseWriter, r *http.Request) {
	var body refineBody
	if !h.decode(w, r, &body) {
		return
	}
	pt := shared.PromptTypeSystem
	if body.PromptType != "" {
		var err error
		if pt, err = shared.ParsePromptType(body.PromptType); err != nil {
			h.writeError(w, err, nil)
			return
		}
	}
	out, err := h.Refiner.Refine(detached(r), h.workflowRequest(body.requestBody), body.PromptText, pt)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, refineResponse{Refined: out})
}

func (h *Handler) HandleRefineConversation(w http.ResponseWriter, r *http.Request) {
	var body conversationBody
	if !h.decode(w, r, &body) {
		return
	}
	out, err := h.Refiner.RefineConversation(detached(r), h.workflowRequest(body.requestBody), body.SystemPrompt, body.History, body.Draft)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, refineResponse{Refined: out})
}
