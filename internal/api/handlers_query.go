package api

import (
	"net/http"
	"strconv"
	"strings"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	if question == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	topK := s.cfg.DefaultTopK
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "top_k must be a positive integer", http.StatusBadRequest)
			return
		}
		topK = n
	}

	ans, err := s.deps.Answerer.Answer(r.Context(), question, topK)
	if err != nil {
		s.log.Error("query failed", "error", err)
		jsonError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
