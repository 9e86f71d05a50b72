package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/ragdoc/internal/fragment"
)

// ManifestFile is the per-document fragment manifest.
const ManifestFile = "docs_metadata.json"

// ErrManifestNotFound is returned for an unknown or malformed document key.
var ErrManifestNotFound = errors.New("manifest not found")

var documentKeyPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// DocumentKey derives the storage key of a document from its URL.
func DocumentKey(rawURL string) string {
	return ContentHashHex([]byte(rawURL))[:16]
}

// DocumentDir is where a document's source, images and manifest live.
func DocumentDir(storageRoot, key string) string {
	return filepath.Join(storageRoot, "documents", key)
}

// WriteManifest replaces the manifest at path atomically.
func WriteManifest(path string, m *fragment.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest file.
func ReadManifest(path string) (*fragment.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m fragment.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// ManifestIndex resolves fragment IDs back to their manifest records.
// Manifests are reloaded when their file changes on disk.
type ManifestIndex struct {
	root string

	mu      sync.Mutex
	entries map[string]manifestEntry // by path
}

type manifestEntry struct {
	modTime  time.Time
	manifest *fragment.Manifest
}

func NewManifestIndex(storageRoot string) *ManifestIndex {
	return &ManifestIndex{
		root:    storageRoot,
		entries: make(map[string]manifestEntry),
	}
}

// Manifest returns the manifest of one document.
func (x *ManifestIndex) Manifest(key string) (*fragment.Manifest, error) {
	if !documentKeyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: invalid key %q", ErrManifestNotFound, key)
	}
	return ReadManifest(filepath.Join(DocumentDir(x.root, key), ManifestFile))
}

// Lookup finds a fragment by ID across all manifests, preferring the
// most recently written one.
func (x *ManifestIndex) Lookup(id string) (fragment.Fragment, bool) {
	for _, m := range x.refresh() {
		if f, ok := m.Lookup(id); ok {
			return f, true
		}
	}
	return fragment.Fragment{}, false
}

// refresh rescans the documents directory and returns manifests newest
// first. Unreadable manifests are skipped.
func (x *ManifestIndex) refresh() []*fragment.Manifest {
	paths, _ := filepath.Glob(filepath.Join(x.root, "documents", "*", ManifestFile))

	x.mu.Lock()
	defer x.mu.Unlock()

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		seen[p] = true
		if e, ok := x.entries[p]; ok && e.modTime.Equal(info.ModTime()) {
			continue
		}
		m, err := ReadManifest(p)
		if err != nil {
			continue
		}
		x.entries[p] = manifestEntry{modTime: info.ModTime(), manifest: m}
	}
	for p := range x.entries {
		if !seen[p] {
			delete(x.entries, p)
		}
	}

	out := make([]*fragment.Manifest, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e.manifest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
