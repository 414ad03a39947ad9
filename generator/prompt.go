package generator

import (
	"fmt"
	"strings"
)

// Prompt is the message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// BuildGenerationPrompt renders the prompt for one idea. The two formats
// share the constraint list and differ in what the output must look like.
func BuildGenerationPrompt(req GenerationRequest) Prompt {
	c := req.Constraints.withDefaults()

	var sb strings.Builder
	sb.WriteString("You write small, self-contained browser games. Output only source code, no explanations.\n")
	sb.WriteString("Requirements:\n")
	switch c.Format {
	case FormatHTML:
		sb.WriteString("- Output a single HTML snippet (no <html>, <head> or <body> tags) with inline <style> and <script>.\n")
		sb.WriteString(fmt.Sprintf("- Render the game into a <canvas> no larger than %dx%d pixels.\n", c.CanvasWidth, c.CanvasHeight))
	default:
		sb.WriteString(fmt.Sprintf("- Output one React function component named %s.\n", c.Component))
		sb.WriteString("- The first line must be: " + CanonicalImport + "\n")
		sb.WriteString("- The last line must be: " + ExportStatement(c.Component) + "\n")
		sb.WriteString(fmt.Sprintf("- The component receives a single prop named %s and must render when it is undefined.\n", c.Prop))
		sb.WriteString(fmt.Sprintf("- Draw the game on a <canvas> no larger than %dx%d pixels using hooks (useRef, useEffect, useState).\n", c.CanvasWidth, c.CanvasHeight))
		sb.WriteString("- Clean up every interval, animation frame and event listener on unmount.\n")
	}
	if !c.AllowDeps {
		sb.WriteString("- Do not import any package other than react. No external assets or network requests.\n")
	}
	sb.WriteString("- Keyboard controls must be documented in a short on-screen caption.\n")

	user := fmt.Sprintf("Game idea: %s\nReturn the complete file.", strings.TrimSpace(req.Idea))

	return Prompt{
		System: sb.String(),
		User:   user,
	}
}
