package styles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AllowList(t *testing.T) {
	c := Default()
	for _, id := range []string{"pop_art", "watercolor", "line_art", "oil_painting", "romantic", "comic_book", "vintage", "original_enhanced"} {
		assert.True(t, c.Valid(id), id)
	}
	assert.False(t, c.Valid("cubism"))
	assert.False(t, c.Valid(""))
	assert.Len(t, c.IDs(), 8)
	assert.Empty(t, c.References("pop_art"))
}

func TestParse_Overlay(t *testing.T) {
	data := []byte(`
styles:
  - id: pop_art
    references:
      - https://cdn.example.com/refs/pop1.jpg
      - https://cdn.example.com/refs/pop2.jpg
  - id: mosaic
    prompt: Rebuild the photo as a tile mosaic.
`)
	c, err := Parse(data)
	require.NoError(t, err)

	pop, ok := c.Get("pop_art")
	require.True(t, ok)
	assert.Equal(t, "Pop Art", pop.Name, "unset fields keep built-in values")
	assert.NotEmpty(t, pop.Prompt)
	assert.Equal(t, []string{"https://cdn.example.com/refs/pop1.jpg", "https://cdn.example.com/refs/pop2.jpg"}, c.References("pop_art"))

	m, ok := c.Get("mosaic")
	require.True(t, ok)
	assert.Equal(t, "mosaic", m.Name)
	assert.Len(t, c.IDs(), 9)

	assert.Empty(t, Default().References("pop_art"), "overlay must not leak into the built-in catalog")
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("styles: [ {id: "))
	assert.Error(t, err)

	_, err = Parse([]byte("styles:\n  - name: nameless\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("styles:\n  - id: newstyle\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "styles.yaml")
	require.NoError(t, os.WriteFile(p, []byte("styles:\n  - id: vintage\n    name: Retro\n"), 0o600))

	c, err := LoadFile(p)
	require.NoError(t, err)
	s, _ := c.Get("vintage")
	assert.Equal(t, "Retro", s.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
