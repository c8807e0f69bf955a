package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kittclouds/kittpages/internal/logging"
	"github.com/kittclouds/kittpages/pkg/slug"
)

const defaultTermWidth = 88

var (
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func decodeRef(ref string) (string, bool) {
	return slug.Decode(ref)
}

// renderMarkdown styles markdown for a terminal. Anything else gets the
// markdown unchanged.
func renderMarkdown(w io.Writer, md string) string {
	if !logging.IsTerminal(w) {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(defaultTermWidth),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n") + "\n"
}
