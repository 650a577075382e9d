// Package styles holds the allow-list of art styles with their prompts and
// optional reference images.
package styles

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Style is one selectable art style.
type Style struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Prompt     string   `yaml:"prompt"`
	References []string `yaml:"references"`
}

// Catalog is an immutable set of styles keyed by id.
type Catalog struct {
	byID map[string]Style
}

var builtin = []Style{
	{ID: "pop_art", Name: "Pop Art", Prompt: "Transform this photo into bold pop art in the style of Andy Warhol: flat saturated colors, thick black outlines, halftone dots."},
	{ID: "watercolor", Name: "Watercolor", Prompt: "Repaint this photo as a soft watercolor painting with loose brush strokes, bleeding pigments and visible paper texture."},
	{ID: "line_art", Name: "Line Art", Prompt: "Convert this photo into clean minimalist black line art on a white background, keeping only the essential contours."},
	{ID: "oil_painting", Name: "Oil Painting", Prompt: "Repaint this photo as a classical oil painting with rich impasto texture and warm, layered lighting."},
	{ID: "romantic", Name: "Romantic", Prompt: "Restyle this photo with a dreamy romantic look: soft focus, pastel pinks and golds, gentle glow."},
	{ID: "comic_book", Name: "Comic Book", Prompt: "Redraw this photo as a comic book panel with inked outlines, cel shading and dynamic colors."},
	{ID: "vintage", Name: "Vintage", Prompt: "Give this photo a vintage print look: faded film colors, subtle grain and warm sepia tones."},
	{ID: "original_enhanced", Name: "Original Enhanced", Prompt: "Enhance this photo for large-format printing: improve sharpness, color balance and lighting without changing its content."},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{byID: make(map[string]Style, len(builtin))}
	for _, s := range builtin {
		c.byID[s.ID] = s
	}
	return c
}

type file struct {
	Styles []Style `yaml:"styles"`
}

// LoadFile reads a YAML overlay from path on top of the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read styles file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse overlays YAML data on the built-in catalog. Entries with a known id
// replace non-empty fields; unknown ids add new styles and must carry a prompt.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse styles YAML: %w", err)
	}

	c := Default()
	for _, s := range f.Styles {
		if s.ID == "" {
			return nil, fmt.Errorf("style without id")
		}
		cur, ok := c.byID[s.ID]
		if !ok {
			if s.Prompt == "" {
				return nil, fmt.Errorf("style %q: prompt is required", s.ID)
			}
			if s.Name == "" {
				s.Name = s.ID
			}
			c.byID[s.ID] = s
			continue
		}
		if s.Name != "" {
			cur.Name = s.Name
		}
		if s.Prompt != "" {
			cur.Prompt = s.Prompt
		}
		if len(s.References) > 0 {
			cur.References = s.References
		}
		c.byID[s.ID] = cur
	}
	return c, nil
}

// Valid reports whether id is an allowed style.
func (c *Catalog) Valid(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the style with id.
func (c *Catalog) Get(id string) (Style, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// IDs lists the allowed style ids in lexical order.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// References returns the reference image URLs configured for id.
func (c *Catalog) References(id string) []string {
	return c.byID[id].References
}
