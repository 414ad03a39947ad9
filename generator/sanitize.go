package generator

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	fence = "```"
	// importWindow is how far into the text a framework import must appear.
	importWindow = 300
	// CanonicalImport is prepended when the framework import is missing.
	CanonicalImport = "import React from 'react';"
)

var reactImportRe = regexp.MustCompile(`import\s+(?:\*\s+as\s+)?React\b|from\s+['"]react['"]`)

// reactBindingRe matches a whole single-line import that binds React.
var reactBindingRe = regexp.MustCompile(`(?m)^[ \t]*import\s+(?:\*\s+as\s+)?React\b[^\n]*\bfrom\s+['"]react['"];?[ \t]*$`)

// ExportStatement is the trailer every component module must end with.
func ExportStatement(component string) string {
	return "export default " + component + ";"
}

// Sanitizer turns raw model output into a loadable module.
type Sanitizer struct {
	constraints Constraints
	exportRe    *regexp.Regexp
	logger      *zap.Logger
}

func NewSanitizer(c Constraints, logger *zap.Logger) *Sanitizer {
	c = c.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{
		constraints: c,
		exportRe:    regexp.MustCompile(`export\s+default\s+` + regexp.QuoteMeta(c.Component) + `\b`),
		logger:      logger,
	}
}

// Sanitize never fails. It strips code fences and, for component output,
// guarantees the framework import and the default export trailer.
func (s *Sanitizer) Sanitize(raw string) (string, Fixes) {
	var fixes Fixes
	if strings.TrimSpace(raw) == "" {
		return raw, fixes
	}

	text := raw
	if strings.Contains(text, fence) {
		text = stripFences(text)
		fixes.StrippedFences = true
	}
	text = strings.TrimSpace(text)

	if s.constraints.Format == FormatComponent {
		head := text
		if len(head) > importWindow {
			head = head[:importWindow]
		}
		if !reactImportRe.MatchString(head) {
			text = hoistImport(text)
			fixes.AddedImport = true
		}
		if !s.exportRe.MatchString(text) {
			text = text + "\n\n" + ExportStatement(s.constraints.Component)
			fixes.AddedExport = true
		}
	}

	if fixes.Any() {
		s.logger.Warn("sanitized malformed model output",
			zap.Strings("fixes", fixes.List()),
			zap.Int("raw_bytes", len(raw)),
			zap.Int("sanitized_bytes", len(text)))
	}
	return text, fixes
}

// hoistImport moves a React import found past the window to the top, so the
// module never binds React twice. Without one it prepends CanonicalImport.
func hoistImport(text string) string {
	loc := reactBindingRe.FindStringIndex(text)
	if loc == nil {
		return CanonicalImport + "\n\n" + text
	}
	line := strings.TrimSpace(text[loc[0]:loc[1]])
	rest := strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
	return line + "\n\n" + rest
}

// stripFences keeps the body between the end of the first fence line and the
// last fence. When that span is empty or inverted every marker is deleted in place.
func stripFences(text string) string {
	first := strings.Index(text, fence)
	last := strings.LastIndex(text, fence)
	if nl := strings.IndexByte(text[first:], '\n'); nl >= 0 {
		bodyStart := first + nl + 1
		if last >= bodyStart {
			text = text[bodyStart:last]
		}
	}
	return strings.ReplaceAll(text, fence, "")
}
