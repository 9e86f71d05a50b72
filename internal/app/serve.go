package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgallion1/ragdoc/internal/api"
	"github.com/dgallion1/ragdoc/internal/pipeline"
)

// Handler builds the HTTP API over the app, with jobs as the background
// ingestion queue.
func (a *App) Handler(jobs api.Jobs) http.Handler {
	return api.NewServer(api.Deps{
		Ingester:       a.Ingester,
		Answerer:       a.Answerer,
		Jobs:           jobs,
		Manifests:      a.Manifests,
		EmbedModel:     a.EmbedModel(),
		EmbedStats:     a.EmbedStats,
		GeneratorModel: a.GeneratorModel(),
		GeneratorStats: a.GeneratorStats,
	}, a.Log, a.Config)
}

// Serve runs the background job workers and the HTTP server until ctx is
// cancelled, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	orch := pipeline.NewOrchestrator(a.Config, a.Ingester, a.Publisher, a.Log)
	orch.Start(ctx)
	defer orch.Stop()

	httpServer := &http.Server{
		Addr:         ":" + a.Config.Port,
		Handler:      a.Handler(orch),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.Config.RequestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("starting ragdoc", "port", a.Config.Port, "vector_store", a.Config.VectorStore, "embedding_model", a.Config.EmbeddingModel)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
