package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/agentradio/radio/internal/ttypes"
)

const maxSuggestions = 5

type voicePreset struct {
	Name string
	ID   string
}

var defaultVoices = voicePresets{
	{Name: "George", ID: ttypes.DefaultVoiceID},
	{Name: "Rachel", ID: "21m00Tcm4TlvDq8ikWAM"},
	{Name: "Adam", ID: "pNInz6obpgDQGcFmaJgB"},
	{Name: "Sarah", ID: "EXAVITQu4vr4xnSDxMaL"},
	{Name: "Antoni", ID: "ErXwobaYiN019PkySvjV"},
	{Name: "Josh", ID: "TxGEqnHWrfWFTfGW9XjX"},
}

// voicePresets is searchable with fuzzy.FindFrom by name or ID.
type voicePresets []voicePreset

func (v voicePresets) String(i int) string { return v[i].Name + " " + v[i].ID }
func (v voicePresets) Len() int            { return len(v) }

// parseVoices reads "Name=voiceID" entries. A bare entry is used as both
// name and ID. No entries means the built-in presets.
func parseVoices(entries []string) voicePresets {
	var presets voicePresets
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, id, ok := strings.Cut(e, "=")
		if !ok {
			name, id = e, e
		}
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if id == "" {
			continue
		}
		presets = append(presets, voicePreset{Name: name, ID: id})
	}
	if len(presets) == 0 {
		return defaultVoices
	}
	return presets
}

const (
	focusVoice = iota
	focusInstructions
)

type settingsModel struct {
	keys         settingsKeyMap
	help         help.Model
	voice        textinput.Model
	instructions textarea.Model

	presets  voicePresets
	matches  fuzzy.Matches
	selected int
	focus    int
	width    int
}

func newSettingsModel(presets voicePresets) settingsModel {
	voice := textinput.New()
	voice.Placeholder = "ElevenLabs voice ID"
	voice.CharLimit = 64
	voice.Prompt = "> "

	instructions := textarea.New()
	instructions.Placeholder = "Describe what your radio should talk about..."
	instructions.ShowLineNumbers = false
	instructions.CharLimit = 4000
	instructions.SetHeight(8)

	m := settingsModel{
		keys:         newSettingsKeyMap(),
		help:         help.New(),
		voice:        voice,
		instructions: instructions,
		presets:      presets,
		selected:     -1,
	}
	m.refreshMatches()
	return m
}

// open loads the current settings into the form and focuses the voice field.
func (m *settingsModel) open(s ttypes.Settings) tea.Cmd {
	m.voice.SetValue(s.VoiceID)
	m.voice.CursorEnd()
	m.instructions.SetValue(s.Instructions)
	m.selected = -1
	m.refreshMatches()
	m.focus = focusVoice
	m.instructions.Blur()
	return m.voice.Focus()
}

func (m *settingsModel) close() {
	m.voice.Blur()
	m.instructions.Blur()
}

func (m *settingsModel) setSize(width, height int) {
	m.width = width
	m.help.Width = width
	m.voice.Width = max(10, width-6)
	m.instructions.SetWidth(max(20, width-4))
	m.instructions.SetHeight(max(3, min(12, height-12)))
}

// value returns the settings in the form. A voice typed by preset name
// resolves to that preset's ID.
func (m settingsModel) value() ttypes.Settings {
	voice := strings.TrimSpace(m.voice.Value())
	for _, p := range m.presets {
		if strings.EqualFold(p.Name, voice) {
			voice = p.ID
			break
		}
	}
	return ttypes.Settings{
		Instructions: m.instructions.Value(),
		VoiceID:      voice,
	}
}

func (m settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Next):
			if m.focus == focusVoice {
				m.focus = focusInstructions
				m.voice.Blur()
				return m, m.instructions.Focus()
			}
			m.focus = focusVoice
			m.instructions.Blur()
			return m, m.voice.Focus()

		case key.Matches(msg, m.keys.Suggest):
			if len(m.matches) > 0 {
				m.selected = (m.selected + 1) % len(m.matches)
				p := m.presets[m.matches[m.selected].Index]
				m.voice.SetValue(p.ID)
				m.voice.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == focusVoice {
		before := m.voice.Value()
		m.voice, cmd = m.voice.Update(msg)
		if m.voice.Value() != before {
			m.selected = -1
			m.refreshMatches()
		}
		return m, cmd
	}
	m.instructions, cmd = m.instructions.Update(msg)
	return m, cmd
}

// refreshMatches ranks presets against the voice field. An empty field, or
// one holding a preset ID, lists every preset.
func (m *settingsModel) refreshMatches() {
	if m.selected >= 0 {
		return
	}
	q := strings.TrimSpace(m.voice.Value())
	if q != "" && !m.isPresetID(q) {
		m.matches = fuzzy.FindFrom(q, m.presets)
		return
	}
	m.matches = make(fuzzy.Matches, len(m.presets))
	for i := range m.presets {
		m.matches[i] = fuzzy.Match{Str: m.presets.String(i), Index: i}
	}
}

func (m settingsModel) isPresetID(id string) bool {
	for _, p := range m.presets {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (m settingsModel) suggestions() string {
	if len(m.matches) == 0 {
		return suggestionStyle.Render("  no matching presets")
	}
	var parts []string
	for i, match := range m.matches {
		if i == maxSuggestions {
			parts = append(parts, suggestionStyle.Render(ellipsis))
			break
		}
		name := m.presets[match.Index].Name
		if i == m.selected {
			parts = append(parts, selectedSuggestionStyle.Render(name))
			continue
		}
		parts = append(parts, suggestionStyle.Render(name))
	}
	return "  " + strings.Join(parts, suggestionStyle.Render(" · "))
}

func (m settingsModel) View() string {
	var b strings.Builder
	b.WriteString(logoStyle.Render(" settings "))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Voice"))
	b.WriteRune('\n')
	b.WriteString(m.voice.View())
	b.WriteRune('\n')
	b.WriteString(m.suggestions())
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Instructions"))
	b.WriteRune('\n')
	b.WriteString(m.instructions.View())
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
