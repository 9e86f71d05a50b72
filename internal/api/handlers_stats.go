package api

import (
	"net/http"
)

func (s *Server) handleOracleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.EmbedStats == nil && s.deps.GeneratorStats == nil {
		jsonError(w, "oracle stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"embedding": map[string]any{
			"model": s.deps.EmbedModel,
			"stats": s.deps.EmbedStats.Snapshot(),
		},
		"generation": map[string]any{
			"model": s.deps.GeneratorModel,
			"stats": s.deps.GeneratorStats.Snapshot(),
		},
	})
}
