// Package webapi exposes the public-site and LMS HTTP endpoints: quote
// estimates, quote request intake, training events, and the
// leaderboard.
package webapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/quote"
	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/training"
)

const maxBodyBytes = 64 << 10

// Handler wires the JSON endpoints over the quote and training services.
type Handler struct {
	log      *slog.Logger
	quotes   *quote.Service
	training *training.Service
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, quotes *quote.Service, trainingSvc *training.Service) *Handler {
	return &Handler{log: log, quotes: quotes, training: trainingSvc}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quotes/estimate", h.handleEstimate)
	mux.HandleFunc("POST /api/quotes", h.handleSubmitQuote)
	mux.HandleFunc("POST /api/training/events", h.handleTrainingEvent)
	mux.HandleFunc("GET /api/training/progress", h.handleTrainingProgress)
	mux.HandleFunc("GET /api/training/leaderboard", h.handleLeaderboard)
}

type estimateRequest struct {
	quote.Criteria
	Limit int `json:"limit,omitempty"`
}

type estimateResponse struct {
	Estimates []quote.Estimate `json:"estimates"`
}

func (h *Handler) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	ests, err := h.quotes.Estimates(r.Context(), req.Criteria, req.Limit)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "invalid_criteria", err.Error())
			return
		}
		h.log.Error("api.quotes.estimate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "estimate lookup failed")
		return
	}

	if ests == nil {
		ests = []quote.Estimate{}
	}
	writeJSON(w, http.StatusOK, estimateResponse{Estimates: ests})
}

func (h *Handler) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	var req quote.Request
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	out, err := h.quotes.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, quote.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.log.Error("api.quotes.submit.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "quote submission failed")
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleTrainingEvent(w http.ResponseWriter, r *http.Request) {
	var ev training.Event
	if err := decodeJSON(w, r, maxBodyBytes, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	res, err := h.training.Apply(r.Context(), ev)
	if err != nil {
		if errors.Is(err, training.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}
		h.log.Error("api.training.event.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleTrainingProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user", "userId query parameter is required")
		return
	}

	p, err := h.training.Progress(r.Context(), userID)
	if err != nil {
		if errors.Is(err, training.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error())
			return
		}
		h.log.Error("api.training.progress.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "progress lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.training.Top(r.Context(), limit)
	if err != nil {
		h.log.Error("api.training.leaderboard.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "leaderboard lookup failed")
		return
	}

	if entries == nil {
		entries = []training.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
