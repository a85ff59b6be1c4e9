package ui

import (
	"fmt"
	"regexp"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
)

// audioTag matches performance cues such as [softly] or [long pause].
var audioTag = regexp.MustCompile(`\[([A-Za-z][A-Za-z '\-]*)\]`)

func renderTranscriptCmd(cfg Config, id, script string, width int) tea.Cmd {
	return func() tea.Msg {
		body, err := renderScript(cfg, script, width)
		if err != nil {
			log.Error("unable to render script", "segment", id, "error", err)
			body = wordwrap.String(script, width)
		}
		return transcriptRenderedMsg{id: id, body: body}
	}
}

// renderScript renders a segment script for the transcript pane. Audio tags
// are set in italics so they read as stage directions.
func renderScript(cfg Config, script string, width int) (string, error) {
	if !cfg.GlamourEnabled {
		return wordwrap.String(script, width), nil
	}

	options := []glamour.TermRendererOption{
		glamourStyle(cfg.GlamourStyle),
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	}
	r, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}

	out, err := r.Render(audioTag.ReplaceAllString(script, `*\[$1\]*`))
	if err != nil {
		return "", fmt.Errorf("error rendering script: %w", err)
	}
	return strings.Trim(out, "\n"), nil
}

// glamourStyle picks a built-in style by name, or loads a JSON style file.
func glamourStyle(style string) glamour.TermRendererOption {
	if _, ok := styles.DefaultStyles[style]; ok || style == styles.AutoStyle {
		return glamour.WithStandardStyle(style)
	}
	return glamour.WithStylePath(style)
}
