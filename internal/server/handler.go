// Package server exposes the session controller over HTTP: session CRUD,
// SSE-streamed turns, interaction answers, journey navigation, driving
// toggles, and the agent status registry.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"codesquad/internal/gateway"
	"codesquad/internal/logging"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"
	"codesquad/internal/session"

	"github.com/go-chi/chi/v5"
)

// Handler bundles the HTTP handlers and their dependencies.
type Handler struct {
	controller *session.Controller
	agents     *AgentRegistry
}

// NewHandler creates the handler set. agents may be nil.
func NewHandler(controller *session.Controller, agents *AgentRegistry) *Handler {
	if agents == nil {
		agents = NewAgentRegistry()
	}
	return &Handler{controller: controller, agents: agents}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type createSessionRequest struct {
	Mode      string                `json:"mode"`
	Name      string                `json:"name,omitempty"`
	Custom    *persona.CustomConfig `json:"custom,omitempty"`
	ProgramID string                `json:"programId,omitempty"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.controller.CreateSession(session.CreateParams{
		Mode:      persona.Mode(req.Mode),
		Name:      req.Name,
		Custom:    req.Custom,
		ProgramID: req.ProgramID,
	})
	switch {
	case errors.Is(err, session.ErrTooManySessions):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusCreated, snap)
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Sessions())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.controller.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	// Closing an unknown session is a no-op by contract.
	h.controller.CloseSession(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Text  string               `json:"text"`
	Files []gateway.Attachment `json:"files,omitempty"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := h.controller.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.streamTurn(w, r, id, func(ctx context.Context, sink orchestrator.Sink) (session.Message, error) {
		return h.controller.Send(ctx, id, req.Text, req.Files, sink)
	})
}

type answerRequest struct {
	MessageID int64  `json:"messageId"`
	Answer    string `json:"answer"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := h.controller.Get(id); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	h.streamTurn(w, r, id, func(ctx context.Context, sink orchestrator.Sink) (session.Message, error) {
		return h.controller.SubmitAnswer(ctx, id, req.MessageID, req.Answer, sink)
	})
}

func (h *Handler) journeyNav(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := h.controller.Get(id); !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.streamTurn(w, r, id, func(ctx context.Context, sink orchestrator.Sink) (session.Message, error) {
			return h.controller.NavigateJourney(ctx, id, delta, sink)
		})
	}
}

type drivingRequest struct {
	Goal string `json:"goal"`
}

func (h *Handler) startDriving(w http.ResponseWriter, r *http.Request) {
	var req drivingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.controller.StartDriving(chi.URLParam(r, "id"), req.Goal); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stopDriving(w http.ResponseWriter, r *http.Request) {
	h.controller.StopDriving(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) specialistStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.controller.SpecialistStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Programs())
}

type agentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) agentStart(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "agent name required")
		return
	}
	writeJSON(w, http.StatusOK, h.agents.Start(req.Name))
}

func (h *Handler) agentStop(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "agent name required")
		return
	}
	state, ok := h.agents.Stop(req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", req.Name))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) agentReset(w http.ResponseWriter, r *http.Request) {
	h.agents.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) agentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agents.Status())
}

// streamTurn runs a turn and relays its events as SSE: start, delta,
// interaction, end, error.
func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, sessionID string, run func(context.Context, orchestrator.Sink) (session.Message, error)) {
	log := logging.Get(logging.CategoryServer)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event string, v interface{}) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	emit("start", map[string]string{"sessionId": sessionID})

	reply, err := run(r.Context(), func(ev orchestrator.Event) {
		switch ev := ev.(type) {
		case orchestrator.TextChunk:
			emit("delta", map[string]string{"content": ev.Text})
		case orchestrator.Interaction:
			emit("interaction", map[string]string{"prompt": ev.Prompt})
		}
	})
	if err != nil {
		log.Error("turn on session %s failed: %v", sessionID, err)
		emit("error", map[string]string{"error": err.Error()})
	}
	emit("end", reply)
}
