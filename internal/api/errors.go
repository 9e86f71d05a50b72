package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/ragdoc/internal/pipeline"
	"github.com/dgallion1/ragdoc/internal/retriever"
	"github.com/dgallion1/ragdoc/internal/vectorstore"
)

// statusFor maps pipeline and retrieval errors to HTTP status codes.
func statusFor(err error) int {
	var fetchErr *pipeline.FetchError
	var extractErr *pipeline.ExtractionError
	switch {
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &extractErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, retriever.ErrEmptyQuery), errors.Is(err, vectorstore.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrManifestNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
