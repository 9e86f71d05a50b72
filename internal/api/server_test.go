package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/llm"
	"github.com/dgallion1/ragdoc/internal/logger"
	"github.com/dgallion1/ragdoc/internal/pipeline"
	"github.com/dgallion1/ragdoc/internal/retriever"
)

type fakeIngester struct {
	err error
	got string
}

func (f *fakeIngester) Ingest(_ context.Context, url string) (*pipeline.Result, error) {
	f.got = url
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{DocumentKey: pipeline.DocumentKey(url), Fragments: 3, Embedded: 3, Stored: 3}, nil
}

type fakeAnswerer struct {
	topK int
	err  error
}

func (f *fakeAnswerer) Answer(_ context.Context, q string, topK int) (*retriever.Answer, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return &retriever.Answer{
		Question:      q,
		RetrievedDocs: []fragment.RetrievalResult{{ID: "page1_chunk0", Score: 0.9, Metadata: fragment.Metadata{Page: 1, ImagePaths: []string{}}}},
		GeneratedText: "because",
	}, nil
}

type fakeJobs struct {
	jobs map[string]*pipeline.Job
	full bool
}

func (f *fakeJobs) Submit(url string) (*pipeline.Job, error) {
	job := pipeline.NewJob(url)
	if f.full {
		return job, errors.New("job queue is full (1)")
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetJob(id string) *pipeline.Job { return f.jobs[id] }
func (f *fakeJobs) QueueDepth() int               { return len(f.jobs) }

type fakeManifests map[string]*fragment.Manifest

func (f fakeManifests) Manifest(key string) (*fragment.Manifest, error) {
	m, ok := f[key]
	if !ok {
		return nil, pipeline.ErrManifestNotFound
	}
	return m, nil
}

type fixture struct {
	srv      *Server
	ingester *fakeIngester
	answerer *fakeAnswerer
	jobs     *fakeJobs
}

func newFixture() *fixture {
	f := &fixture{
		ingester: &fakeIngester{},
		answerer: &fakeAnswerer{},
		jobs:     &fakeJobs{jobs: map[string]*pipeline.Job{}},
	}
	f.srv = NewServer(Deps{
		Ingester: f.ingester,
		Answerer: f.answerer,
		Jobs:     f.jobs,
		Manifests: fakeManifests{
			"0123456789abcdef": {DocumentKey: "0123456789abcdef", Fragments: []fragment.Fragment{fragment.NewText(1, 0, "x")}},
		},
		EmbedModel: "jina-clip-v1",
		EmbedStats: llm.NewStats(time.Hour),
	}, logger.Nop(), config.Config{DefaultTopK: 5, RequestTimeout: time.Minute})
	return f
}

func (f *fixture) do(method, target string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, target, nil)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRoot(t *testing.T) {
	rec, body := newFixture().do(http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "RAG API is running", body["message"])
}

func TestReadAndIngest(t *testing.T) {
	f := newFixture()
	rec, body := f.do(http.MethodGet, "/read-and-ingest?pdf_url="+url.QueryEscape("https://x.test/a.pdf"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://x.test/a.pdf", f.ingester.got)
	docs := body["documents"].(map[string]any)
	assert.EqualValues(t, 3, docs["stored"])
}

func TestReadAndIngestLegacyPath(t *testing.T) {
	rec, _ := newFixture().do(http.MethodGet, "/ReadFile/read-and-ingest?pdf_url=https://x.test/a.pdf")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadAndIngestErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"fetch", &pipeline.FetchError{URL: "u", StatusCode: 404}, http.StatusBadGateway},
		{"extract", &pipeline.ExtractionError{Source: "s", Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{"dimension", wrapStoreErr(fragment.ErrDimensionMismatch), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.ingester.err = tc.err
			rec, body := f.do(http.MethodGet, "/read-and-ingest?pdf_url=https://x.test/a.pdf")
			assert.Equal(t, tc.want, rec.Code)
			assert.NotEmpty(t, body["error"])
		})
	}

	rec, _ := newFixture().do(http.MethodGet, "/read-and-ingest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func wrapStoreErr(err error) error {
	return errors.Join(errors.New("store fragments"), err)
}

func TestQuery(t *testing.T) {
	f := newFixture()
	rec, body := f.do(http.MethodGet, "/query?question=why&top_k=3")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.answerer.topK)
	assert.Equal(t, "why", body["question"])
	assert.Equal(t, "because", body["generated_text"])
	assert.Len(t, body["retrieved_docs"], 1)
	assert.Contains(t, body, "generated_image_text")
}

func TestQueryDefaultsTopK(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(http.MethodGet, "/Question/query?question=why")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.answerer.topK)
}

func TestQueryValidation(t *testing.T) {
	f := newFixture()
	rec, _ := f.do(http.MethodGet, "/query?question=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(http.MethodGet, "/query?question=x&top_k=-2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.answerer.err = retriever.ErrEmptyQuery
	rec, _ = f.do(http.MethodGet, "/query?question=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncIngestAndStatus(t *testing.T) {
	f := newFixture()
	rec, body := f.do(http.MethodPost, "/api/ingest?pdf_url=https://x.test/a.pdf")
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobID := body["job_id"].(string)
	assert.Equal(t, "/api/ingest/"+jobID+"/status", body["poll_url"])

	rec, body = f.do(http.MethodGet, "/api/ingest/"+jobID+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "queued", body["status"])

	rec, _ = f.do(http.MethodGet, "/api/ingest/nope/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsyncIngestQueueFull(t *testing.T) {
	f := newFixture()
	f.jobs.full = true
	rec, _ := f.do(http.MethodPost, "/api/ingest?pdf_url=https://x.test/a.pdf")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestManifestEndpoint(t *testing.T) {
	f := newFixture()
	rec, body := f.do(http.MethodGet, "/api/documents/0123456789abcdef/manifest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["fragments"], 1)

	rec, _ = f.do(http.MethodGet, "/api/documents/ffffffffffffffff/manifest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOracleStats(t *testing.T) {
	rec, body := newFixture().do(http.MethodGet, "/api/stats/oracle")
	require.Equal(t, http.StatusOK, rec.Code)
	emb := body["embedding"].(map[string]any)
	assert.Equal(t, "jina-clip-v1", emb["model"])
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
