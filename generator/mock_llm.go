package generator

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// MockLLM is an offline stand-in that never calls an external model.
// It answers with a fenced component so the sanitizer path is exercised.
type MockLLM struct {
	Component string
}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	name := m.Component
	if name == "" {
		name = DefaultConstraints().Component
	}
	idea := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(prompt.User, "\n", 2)[0], "Game idea:"))
	idea = jsxText.Replace(html.EscapeString(idea))

	var sb strings.Builder
	sb.WriteString("```jsx\n")
	sb.WriteString(CanonicalImport + "\n\n")
	sb.WriteString(fmt.Sprintf("const %s = () => {\n", name))
	sb.WriteString("  return (\n")
	sb.WriteString("    <div className=\"game-zone\">\n")
	sb.WriteString(fmt.Sprintf("      <h2>%s</h2>\n", idea))
	sb.WriteString("      <canvas width={400} height={400} />\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("  );\n")
	sb.WriteString("};\n\n")
	sb.WriteString(ExportStatement(name) + "\n")
	sb.WriteString("```\n")
	return sb.String(), nil
}
