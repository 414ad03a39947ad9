package generator

import (
	"fmt"
	"strings"
)

// Format selects what kind of source the model is asked to produce.
type Format string

const (
	// FormatComponent is a full React component module with import and default export.
	FormatComponent Format = "component"
	// FormatHTML is a bare HTML snippet with inline script/style.
	FormatHTML Format = "html"
)

// ParseFormat accepts the config spelling of a Format. Empty means FormatComponent.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatComponent):
		return FormatComponent, nil
	case string(FormatHTML), "html-snippet":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown artifact format %q", s)
	}
}

// Constraints are the hard limits baked into every generation prompt.
type Constraints struct {
	Component    string
	Prop         string
	CanvasWidth  int
	CanvasHeight int
	AllowDeps    bool
	Format       Format
}

// DefaultConstraints matches the GameZone component the live app mounts.
func DefaultConstraints() Constraints {
	return Constraints{
		Component:    "GameZone",
		Prop:         "currentGame",
		CanvasWidth:  400,
		CanvasHeight: 400,
		Format:       FormatComponent,
	}
}

// withDefaults fills zero fields from DefaultConstraints.
func (c Constraints) withDefaults() Constraints {
	d := DefaultConstraints()
	if c.Component == "" {
		c.Component = d.Component
	}
	if c.Prop == "" {
		c.Prop = d.Prop
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = d.CanvasWidth
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = d.CanvasHeight
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	return c
}

// GenerationRequest is one idea to turn into source. It is consumed once.
type GenerationRequest struct {
	Idea        string
	Constraints Constraints
}

// Fixes records which structural repairs the Sanitizer applied.
type Fixes struct {
	AddedImport    bool `json:"added_import"`
	AddedExport    bool `json:"added_export"`
	StrippedFences bool `json:"stripped_fences"`
}

// Any reports whether at least one fix fired.
func (f Fixes) Any() bool {
	return f.AddedImport || f.AddedExport || f.StrippedFences
}

// List returns the names of the fixes that fired, in a stable order.
func (f Fixes) List() []string {
	var out []string
	if f.StrippedFences {
		out = append(out, "stripped_fences")
	}
	if f.AddedImport {
		out = append(out, "added_import")
	}
	if f.AddedExport {
		out = append(out, "added_export")
	}
	return out
}

// GenerationResult is the model output before and after sanitizing.
type GenerationResult struct {
	Raw       string `json:"raw"`
	Sanitized string `json:"sanitized"`
	Fixes     Fixes  `json:"fixes"`
}
