package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/marginalia/internal/config"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/ingest"
	"github.com/lazypower/marginalia/internal/nudge"
	"github.com/lazypower/marginalia/internal/store"
)

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req nudge.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Paragraph == "" {
		http.Error(w, `{"error":"user_id and paragraph required"}`, http.StatusBadRequest)
		return
	}
	if req.EntryDate == "" {
		req.EntryDate = time.Now().Format("2006-01-02")
	}

	resp, err := s.pipeline.Evaluate(r.Context(), req)
	if err != nil {
		// Storage faults degrade to silence: the editor never shows an
		// error in the margin.
		log.Printf("evaluate failed: user=%s err=%v", req.UserID, err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(nudge.Response{
			Nudges:        []store.Nudge{},
			ParagraphHash: nudge.ParagraphHash(req.Paragraph),
			Trace:         nudge.FaultTrace(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleIngestEntry(w http.ResponseWriter, r *http.Request) {
	var req ingest.EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Content == "" {
		http.Error(w, `{"error":"user_id and content required"}`, http.StatusBadRequest)
		return
	}

	created, err := s.ingestor.IngestEntry(r.Context(), req)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	ids := make([]int64, len(created))
	for i, m := range created {
		ids[i] = m.ID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"created":    len(created),
		"memory_ids": ids,
	})
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}
	memories, err := s.db.ListMemories(userID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"memories": memories})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}

	// Consolidation is slow (one big oracle call), so run it async and 202 now.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		result, err := s.ingestor.Consolidate(ctx, req.UserID)
		if err != nil {
			log.Printf("consolidation failed for %s: %v", req.UserID, err)
			return
		}
		log.Printf("consolidation for %s: %d connections, %d implications, %d rejected",
			req.UserID, result.ConnectionsCreated, result.ImplicationsCreated, result.Rejected)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "consolidating"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	query := r.URL.Query().Get("q")
	if userID == "" || query == "" {
		http.Error(w, `{"error":"user_id and q required"}`, http.StatusBadRequest)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	hops := 2
	if v := r.URL.Query().Get("hops"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 2 {
			hops = n
		}
	}

	// Direct retrieval is a real lookup, so hebbian reinforcement runs.
	result, err := s.engine.Retrieve(r.Context(), userID, query, engine.Options{
		MaxMemories: limit,
		MaxHops:     hops,
		ContactID:   r.URL.Query().Get("contact_id"),
		Diversify:   true,
	})
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"memories":     result.Memories,
		"implications": result.Implications,
	})
}

func (s *Server) handleListNudges(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id required"}`, http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	nudges, err := s.db.RecentNudges(userID, limit)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"nudges": nudges})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	nudgeID, err := strconv.ParseInt(chi.URLParam(r, "nudgeID"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid nudge id"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Feedback string `json:"feedback"` // up, down
		Reason   string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	n, err := s.db.GetNudge(nudgeID)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	if n == nil {
		http.Error(w, `{"error":"nudge not found"}`, http.StatusNotFound)
		return
	}

	fb := store.NudgeFeedback{
		NudgeID:   &n.ID,
		UserID:    n.UserID,
		NudgeType: n.Type,
		Feedback:  req.Feedback,
		Reason:    req.Reason,
	}
	if err := s.db.AddFeedback(&fb); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"presets": config.Presets()})
}
