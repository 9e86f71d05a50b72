package fragment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDs(t *testing.T) {
	assert.Equal(t, "page3_chunk0", TextID(3, 0))
	assert.Equal(t, "page2_img_page_2_img_1.png", ImageID(2, "page_2_img_1.png"))
}

func TestNewText(t *testing.T) {
	f := NewText(1, 4, "hello")

	require.NoError(t, f.Validate())
	assert.Equal(t, "page1_chunk4", f.ID)
	require.NotNil(t, f.ChunkID)
	assert.Equal(t, 4, *f.ChunkID)
	assert.Empty(t, f.ImagePaths)
}

func TestNewImage(t *testing.T) {
	f := NewImage(2, "page_2_img_0.jpg", "/data/doc/page_2_img_0.jpg")

	require.NoError(t, f.Validate())
	assert.Equal(t, "page2_img_page_2_img_0.jpg", f.ID)
	assert.Nil(t, f.ChunkID)
	assert.Equal(t, []string{"/data/doc/page_2_img_0.jpg"}, f.ImagePaths)
}

func TestValidateRejectsMalformed(t *testing.T) {
	zero := 0
	cases := map[string]Fragment{
		"empty id":         {Kind: KindText, Text: "x", ChunkID: &zero},
		"blank text":       {ID: "a", Kind: KindText, Text: "  ", ChunkID: &zero},
		"text no chunk id": {ID: "a", Kind: KindText, Text: "x"},
		"image two paths":  {ID: "a", Kind: KindImage, ImagePaths: []string{"1", "2"}},
		"image with text":  {ID: "a", Kind: KindImage, Text: "x", ImagePaths: []string{"1"}},
		"unknown kind":     {ID: "a", Kind: "audio"},
	}
	for name, f := range cases {
		assert.Error(t, f.Validate(), name)
	}
}

func TestMetadataForSubstitutesDefaults(t *testing.T) {
	img := NewImage(5, "x.png", "/p/x.png")
	m := MetadataFor(img)
	assert.Equal(t, Metadata{Page: 5, ChunkID: 0, ImagePaths: []string{"/p/x.png"}}, m)

	bare := MetadataFor(Fragment{ID: "q", Page: -1})
	assert.Equal(t, 0, bare.Page)
	assert.Equal(t, 0, bare.ChunkID)
	assert.NotNil(t, bare.ImagePaths)
}

func TestManifestJSONShape(t *testing.T) {
	m := Manifest{
		DocumentURL: "https://example.com/a.pdf",
		Fragments: []Fragment{
			NewText(1, 0, "alpha"),
			NewImage(1, "page_1_img_0.png", "dir/page_1_img_0.png"),
		},
	}
	m.Fragments[0].Embedding = []float32{1, 2}

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	frags := decoded["fragments"].([]any)
	text := frags[0].(map[string]any)
	img := frags[1].(map[string]any)

	assert.NotContains(t, text, "embedding")
	assert.Equal(t, "text", text["kind"])
	assert.EqualValues(t, 0, text["chunk_id"])
	assert.Nil(t, img["chunk_id"])
	assert.Equal(t, "", img["text"])

	got, ok := m.Lookup("page1_chunk0")
	require.True(t, ok)
	assert.Equal(t, "alpha", got.Text)
	_, ok = m.Lookup("missing")
	assert.False(t, ok)
}
