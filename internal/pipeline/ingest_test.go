package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/document"
	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/logger"
	"github.com/dgallion1/ragdoc/internal/vectorstore/memory"
)

// stubEmbedder returns a 2-d vector per fragment. Text containing "skip"
// yields nil; text containing "boom" fails.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, f fragment.Fragment) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	switch {
	case strings.Contains(f.Text, "boom"):
		return nil, errors.New("oracle unavailable")
	case strings.Contains(f.Text, "skip"):
		return nil, nil
	case f.Kind == fragment.KindImage:
		return []float32{0, 1}, nil
	default:
		return []float32{1, float32(f.Page)}, nil
	}
}

type docServer struct {
	*httptest.Server
	hits atomic.Int32
}

func serveDoc(t *testing.T, body string) *docServer {
	t.Helper()
	s := &docServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestIngester(t *testing.T, emb Embedder) (*Ingester, *memory.Store) {
	t.Helper()
	cfg := config.Config{
		StorageRoot:      t.TempDir(),
		MaxDownloadBytes: 1 << 20,
		ChunkMaxChars:    1200,
		EmbedWorkers:     3,
	}
	store := memory.New()
	in, err := NewIngester(cfg, emb, store, logger.Nop())
	require.NoError(t, err)
	in.fetcher.backoff = func(int) time.Duration { return 0 }
	t.Cleanup(in.Close)
	return in, store
}

func TestIngestTextDocument(t *testing.T) {
	srv := serveDoc(t, "Para1.\n\nPara2.\fPage two.")
	in, store := newTestIngester(t, &stubEmbedder{})
	url := srv.URL + "/notes.txt"

	res, err := in.Ingest(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, DocumentKey(url), res.DocumentKey)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, 2, res.Stored)
	assert.Zero(t, res.Skipped)

	m, err := ReadManifest(res.ManifestPath)
	require.NoError(t, err)
	require.Len(t, m.Fragments, 2)
	assert.Equal(t, "page1_chunk0", m.Fragments[0].ID)
	assert.Equal(t, "Para1.\n\nPara2.", m.Fragments[0].Text)
	assert.Equal(t, "page2_chunk0", m.Fragments[1].ID)
	assert.Equal(t, url, m.DocumentURL)
	assert.Equal(t, ManifestFile, filepath.Base(res.ManifestPath))

	_, err = os.Stat(filepath.Join(filepath.Dir(res.ManifestPath), "source.txt"))
	assert.NoError(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIngestTwiceIsIdempotent(t *testing.T) {
	srv := serveDoc(t, "One.\n\nTwo.\fThree.")
	in, store := newTestIngester(t, &stubEmbedder{})
	url := srv.URL + "/doc.txt"

	first, err := in.Ingest(context.Background(), url)
	require.NoError(t, err)
	m1, err := ReadManifest(first.ManifestPath)
	require.NoError(t, err)

	second, err := in.Ingest(context.Background(), url)
	require.NoError(t, err)
	m2, err := ReadManifest(second.ManifestPath)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.EqualValues(t, 1, srv.hits.Load(), "cached source is not fetched again")

	require.Len(t, m2.Fragments, len(m1.Fragments))
	for i := range m1.Fragments {
		assert.Equal(t, m1.Fragments[i].ID, m2.Fragments[i].ID)
	}

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(m1.Fragments), n, "re-upsert overwrites by id")
}

func TestIngestDropsFragmentsWithoutEmbedding(t *testing.T) {
	srv := serveDoc(t, "keep this\fskip this one")
	in, store := newTestIngester(t, &stubEmbedder{})

	res, err := in.Ingest(context.Background(), srv.URL+"/d.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, 1, res.Embedded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Stored)

	n, _ := store.Count(context.Background())
	assert.Equal(t, 1, n)
}

func TestIngestOracleErrorAbortsBeforeStore(t *testing.T) {
	srv := serveDoc(t, "fine\ffine\fboom\ffine")
	in, store := newTestIngester(t, &stubEmbedder{})

	_, err := in.Ingest(context.Background(), srv.URL+"/d.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle unavailable")

	n, _ := store.Count(context.Background())
	assert.Zero(t, n, "nothing persisted after a failed run")
}

func TestIngestFetchErrorWritesNothing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	in, _ := newTestIngester(t, &stubEmbedder{})
	url := srv.URL + "/missing.pdf"

	_, err := in.Ingest(context.Background(), url)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.False(t, IsRetryable(err))

	_, statErr := os.Stat(filepath.Join(DocumentDir(in.StorageRoot(), DocumentKey(url)), ManifestFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIngestExtractionError(t *testing.T) {
	srv := serveDoc(t, "this is not a zip archive")
	in, _ := newTestIngester(t, &stubEmbedder{})

	_, err := in.Ingest(context.Background(), srv.URL+"/report.docx")

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.True(t, strings.HasSuffix(extractErr.Source, "source.docx"))
}

func TestIngestReportsProgress(t *testing.T) {
	srv := serveDoc(t, "a\fb\fc")
	in, _ := newTestIngester(t, &stubEmbedder{})
	job := NewJob(srv.URL + "/d.txt")

	_, err := in.Run(context.Background(), job.URL, job)
	require.NoError(t, err)

	snap := job.Snapshot()
	assert.Equal(t, StatusStoring, snap.Status)
	assert.Equal(t, 3, snap.Progress.TotalFragments)
	assert.Equal(t, 3, snap.Progress.Embedded)
}

func TestBuildFragmentsImageOnlyPage(t *testing.T) {
	in, _ := newTestIngester(t, &stubEmbedder{})
	dir := t.TempDir()
	doc := &document.Document{Pages: []document.Page{
		{Number: 1, Images: []document.Image{{Index: 0, Ext: "png", Data: []byte("png-bytes")}}},
		{Number: 2, Text: "Words.", Images: []document.Image{{Index: 0, Ext: "jpg"}}},
	}}

	frags, err := in.buildFragments(doc, dir)
	require.NoError(t, err)
	require.Len(t, frags, 2)

	img := frags[0]
	assert.Equal(t, "page1_img_page_1_img_0.png", img.ID)
	assert.Equal(t, fragment.KindImage, img.Kind)
	assert.Nil(t, img.ChunkID)
	require.Len(t, img.ImagePaths, 1)
	data, err := os.ReadFile(img.ImagePaths[0])
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	assert.Equal(t, "page2_chunk0", frags[1].ID, "empty image data is skipped")
	for _, f := range frags {
		assert.NoError(t, f.Validate())
	}
}

func TestSourceExt(t *testing.T) {
	cases := map[string]string{
		"https://arxiv.org/pdf/2401.00001":     ".pdf",
		"https://x.test/paper.PDF":             ".pdf",
		"https://x.test/notes.md?raw=1":        ".md",
		"https://x.test/page.html#frag":        ".html",
		"https://x.test/archive.tar.gz":        ".pdf",
		"https://x.test/dir.docx/download.txt": ".txt",
	}
	for in, want := range cases {
		assert.Equal(t, want, sourceExt(in), in)
	}
}
