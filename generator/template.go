package generator

import (
	"fmt"
	"html"
	"strings"
	"time"
)

var jsxText = strings.NewReplacer("{", "&#123;", "}", "&#125;")

// TitleCard renders a static placeholder component announcing a game by name.
// It needs no model call and is what /artifact/update writes.
func TitleCard(c Constraints, gameName string, at time.Time) string {
	c = c.withDefaults()
	name := jsxText.Replace(html.EscapeString(strings.TrimSpace(gameName)))

	var sb strings.Builder
	sb.WriteString(CanonicalImport + "\n\n")
	sb.WriteString(fmt.Sprintf("const %s = ({ %s }) => {\n", c.Component, c.Prop))
	sb.WriteString("  return (\n")
	sb.WriteString("    <div className=\"game-zone\">\n")
	sb.WriteString("      <div className=\"game-content\">\n")
	sb.WriteString(fmt.Sprintf("        <h2>%s</h2>\n", name))
	sb.WriteString(fmt.Sprintf("        <p>Welcome to %s!</p>\n", name))
	sb.WriteString("        <div style={{\n")
	sb.WriteString("          background: 'linear-gradient(45deg, #ff6b6b, #4ecdc4)',\n")
	sb.WriteString("          padding: '15px',\n")
	sb.WriteString("          borderRadius: '8px',\n")
	sb.WriteString("          color: 'white',\n")
	sb.WriteString("          margin: '15px 0',\n")
	sb.WriteString("          textAlign: 'center',\n")
	sb.WriteString("          fontWeight: 'bold'\n")
	sb.WriteString("        }}>\n")
	sb.WriteString(fmt.Sprintf("          Current Game: %s\n", name))
	sb.WriteString("          <br />\n")
	sb.WriteString(fmt.Sprintf("          Updated at: %s\n", at.Format("15:04:05")))
	sb.WriteString("        </div>\n")
	sb.WriteString("      </div>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("  );\n")
	sb.WriteString("};\n\n")
	sb.WriteString(ExportStatement(c.Component))
	return sb.String()
}
