package server

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// errTextsEmpty is the fixed validation message for batches containing an
// empty or whitespace-only entry.
const errTextsEmpty = "texts must be non-empty strings"

// EmbedRequest is the request body for POST /embed.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse is the response body for POST /embed. Embeddings preserve
// the order of the request texts.
type EmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response with a fixed shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports readiness, the served model name, and the embedding
// dimensionality. Always 200; never acquires the model lock.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Model:      s.model.Name(),
		Dimensions: s.model.Dimensions(),
	})
}

// handleEmbed encodes a batch of texts into embedding vectors.
//
// Validation is all-or-nothing: one empty or whitespace-only entry rejects
// the whole batch. An empty batch short-circuits to an empty response. The
// model lock is only held inside EmbedBatch, never during validation or
// serialization.
func (s *Service) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Texts) == 0 {
		writeJSON(w, http.StatusOK, EmbedResponse{Embeddings: [][]float32{}})
		return
	}

	clean := make([]string, 0, len(req.Texts))
	for _, t := range req.Texts {
		t = strings.TrimSpace(t)
		if t == "" {
			writeError(w, http.StatusBadRequest, errTextsEmpty)
			return
		}
		clean = append(clean, t)
	}

	vectors, err := s.model.EmbedBatch(clean)
	if err != nil {
		log.Error().Err(err).Int("texts", len(clean)).Str("request_id", GetRequestID(r.Context())).Msg("Encoding failed")
		writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	writeJSON(w, http.StatusOK, EmbedResponse{Embeddings: vectors})
}
