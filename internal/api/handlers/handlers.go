// Package handlers implements the HTTP handlers for the visualizer API.
package handlers

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tbuliHe/visualizer/internal/guardrails"
	"github.com/tbuliHe/visualizer/internal/visualize"
	"github.com/tbuliHe/visualizer/pkg/contracts"
	"github.com/tbuliHe/visualizer/pkg/models"
)

// maxBodyBytes bounds the request body; descriptions are short free text.
const maxBodyBytes = 64 << 10

// Handlers holds all handler dependencies.
type Handlers struct {
	Visualizer contracts.VisualizerService
	Guard      guardrails.Guard

	// ErrorMessage is returned for every pipeline failure.
	ErrorMessage string
}

// New creates a new Handlers instance.
func New(v contracts.VisualizerService, guard guardrails.Guard, errorMessage string) *Handlers {
	return &Handlers{
		Visualizer:   v,
		Guard:        guard,
		ErrorMessage: errorMessage,
	}
}

// ── Visualize ───────────────────────────────────────────────

// Visualize handles POST /api/visualize.
func (h *Handlers) Visualize(w http.ResponseWriter, r *http.Request) {
	var req models.VisualizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	checked, err := h.Guard.Check(req.FunctionDesc)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if checked.Suspicious {
		log.Warn().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("pattern", checked.Pattern).
			Msg("Description matched an injection pattern")
	}

	points, err := h.Visualizer.Visualize(r.Context(), checked.Description)
	if err != nil {
		resp := models.ErrorResponse{Error: h.ErrorMessage}
		if f, ok := visualize.AsFailure(err); ok {
			resp.Details = f.Details
		}
		log.Error().
			Err(err).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("Visualize request failed")
		respondJSON(w, http.StatusInternalServerError, resp)
		return
	}

	respondJSON(w, http.StatusOK, models.VisualizeResponse{DataPoints: points})
}

// ── Helpers ─────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}
