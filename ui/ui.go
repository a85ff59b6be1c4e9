// Package ui provides the terminal player for the radio.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	te "github.com/muesli/termenv"

	"github.com/agentradio/radio/internal/queue"
	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/ttypes"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied"
	ellipsis             = "…"
	orbRows              = 9
	maxVolumeBarWidth    = 32
)

// Player is the part of a radio session the TUI drives.
type Player interface {
	Toggle() error
	ToggleMute() error
	AdjustVolume(delta float64) error
	Apply(settings ttypes.Settings) ttypes.Settings
	Settings() ttypes.Settings
	Status() radio.Status
	Amplitude() float64
	Spectrum() []float64
	Subscribe() (<-chan radio.Status, func())
	QueueStats() queue.Stats
}

var _ Player = (*radio.Session)(nil)

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, player Player) *tea.Program {
	log.Debug(
		"Starting radio",
		"glamour",
		cfg.GlamourEnabled,
		"frame_interval",
		cfg.FrameInterval,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, player), opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	statusMsg               radio.Status
	frameMsg                time.Time
	statusMessageTimeoutMsg struct{ seq int }
	transcriptRenderedMsg   struct {
		id   string
		body string
	}
)

// view is the top-level screen being shown.
type view int

const (
	viewPlayer view = iota
	viewSettings
)

func (v view) String() string {
	return map[view]string{
		viewPlayer:   "showing player",
		viewSettings: "showing settings",
	}[v]
}

type model struct {
	cfg    Config
	player Player
	view   view

	keys     playerKeyMap
	help     help.Model
	spinner  spinner.Model
	volume   progress.Model
	settings settingsModel

	status    radio.Status
	stats     queue.Stats
	amplitude float64
	spectrum  []float64
	frame     int

	width  int
	height int

	transcriptID string
	transcript   string

	statusMessage    string
	statusMessageErr bool
	statusMessageSeq int

	updates     <-chan radio.Status
	unsubscribe func()
}

func newModel(cfg Config, player Player) model {
	if cfg.GlamourStyle == "" || cfg.GlamourStyle == styles.AutoStyle {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 50 * time.Millisecond
	}

	updates, unsubscribe := player.Subscribe()

	return model{
		cfg:    cfg,
		player: player,
		keys:   newPlayerKeyMap(),
		help:   help.New(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(loadingStyle),
		),
		volume: progress.New(
			progress.WithSolidFill(orbLight),
			progress.WithoutPercentage(),
			progress.WithWidth(maxVolumeBarWidth),
		),
		settings:    newSettingsModel(parseVoices(cfg.Voices)),
		status:      player.Status(),
		stats:       player.QueueStats(),
		updates:     updates,
		unsubscribe: unsubscribe,
	}
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "view", m.view)
	return tea.Batch(
		waitForStatus(m.updates),
		frameTick(m.cfg.FrameInterval),
		m.spinner.Tick,
	)
}

func waitForStatus(updates <-chan radio.Status) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-updates
		if !ok {
			return nil
		}
		return statusMsg(st)
	}
}

func frameTick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// playerCmd runs a player control off the update loop.
func playerCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.volume.Width = max(10, min(maxVolumeBarWidth, msg.Width-16))
		m.settings.setSize(msg.Width, msg.Height)
		if m.status.Script != "" {
			cmds = append(cmds, m.renderTranscript())
		}

	case statusMsg:
		prev := m.status
		m.status = radio.Status(msg)
		m.stats = m.player.QueueStats()
		if m.status.SegmentID != m.transcriptID {
			m.transcript = ""
			m.transcriptID = m.status.SegmentID
			if m.status.Script != "" {
				cmds = append(cmds, m.renderTranscript())
			}
		}
		if m.status.LastError != "" && m.status.LastError != prev.LastError {
			log.Warn("segment fetch failed", "error", m.status.LastError)
		}
		cmds = append(cmds, waitForStatus(m.updates))

	case frameMsg:
		m.frame++
		m.amplitude = m.player.Amplitude()
		m.spectrum = m.player.Spectrum()
		m.stats = m.player.QueueStats()
		cmds = append(cmds, frameTick(m.cfg.FrameInterval))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case transcriptRenderedMsg:
		if msg.id == m.status.SegmentID {
			m.transcript = msg.body
		}

	case errMsg:
		cmds = append(cmds, m.showStatusMessage(msg.Error(), true))

	case statusMessageTimeoutMsg:
		if msg.seq == m.statusMessageSeq {
			m.statusMessage = ""
			m.statusMessageErr = false
		}

	case tea.KeyMsg:
		if m.view == viewSettings {
			return m.updateSettings(msg)
		}
		return m.updatePlayer(msg)
	}

	if m.view == viewSettings {
		var cmd tea.Cmd
		m.settings, cmd = m.settings.update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) updatePlayer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		// the play button is disabled until the first segment arrives
		if m.status.State == ttypes.StateLoading {
			return m, nil
		}
		return m, playerCmd(m.player.Toggle)

	case key.Matches(msg, m.keys.Mute):
		return m, playerCmd(m.player.ToggleMute)

	case key.Matches(msg, m.keys.VolumeDown):
		return m, playerCmd(func() error { return m.player.AdjustVolume(-radio.VolumeStep) })

	case key.Matches(msg, m.keys.VolumeUp):
		return m, playerCmd(func() error { return m.player.AdjustVolume(radio.VolumeStep) })

	case key.Matches(msg, m.keys.Settings):
		m.view = viewSettings
		cmd := m.settings.open(m.player.Settings())
		return m, cmd

	case key.Matches(msg, m.keys.Copy):
		script := m.status.Script
		if script == "" {
			cmd := m.showStatusMessage("Nothing on air", false)
			return m, cmd
		}
		// Copy using OSC 52
		te.Copy(script)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(script)
		cmd := m.showStatusMessage("Copied script", false)
		return m, cmd

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.settings.keys.Cancel):
		m.settings.close()
		m.view = viewPlayer
		return m, nil

	case key.Matches(msg, m.settings.keys.Save):
		applied := m.player.Apply(m.settings.value())
		m.settings.close()
		m.view = viewPlayer
		log.Info("settings applied", "voice", applied.VoiceID, "instructions", len(applied.Instructions))
		text, isErr := "Settings applied to the next segment", false
		if applied.Instructions == "" {
			text, isErr = "Instructions are empty", true
		}
		cmd := m.showStatusMessage(text, isErr)
		return m, cmd
	}

	var cmd tea.Cmd
	m.settings, cmd = m.settings.update(msg)
	return m, cmd
}

func (m *model) showStatusMessage(text string, isErr bool) tea.Cmd {
	m.statusMessageSeq++
	m.statusMessage = text
	m.statusMessageErr = isErr
	seq := m.statusMessageSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{seq: seq}
	})
}

func (m model) renderTranscript() tea.Cmd {
	return renderTranscriptCmd(m.cfg, m.status.SegmentID, m.status.Script, m.transcriptWidth())
}

func (m model) transcriptWidth() int {
	w := m.width - 4
	if m.cfg.GlamourMaxWidth > 0 {
		w = min(w, int(m.cfg.GlamourMaxWidth)) //nolint:gosec
	}
	return max(20, w)
}

func (m model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.view == viewSettings {
		return m.settings.View()
	}

	var b strings.Builder

	b.WriteString(logoStyle.Render(" agent radio "))
	b.WriteString("\n\n")

	level := 0.0
	if m.status.State == ttypes.StatePlaying {
		level = m.amplitude
	}
	for _, line := range strings.Split(renderOrb(level, orbRows), "\n") {
		b.WriteString(center(orbStyle.Render(line), m.width))
		b.WriteRune('\n')
	}
	spectrumWidth := min(m.width-4, orbRows*4)
	b.WriteString(center(spectrumStyle.Render(renderSpectrum(m.spectrum, spectrumWidth)), m.width))
	b.WriteString("\n\n")

	b.WriteString(center(m.statusLine(), m.width))
	b.WriteString("\n\n")
	b.WriteString("  " + m.volumeLine())
	b.WriteRune('\n')
	b.WriteString("  " + m.queueLine())
	b.WriteString("\n\n")

	footer := m.footer()
	used := strings.Count(b.String(), "\n") + strings.Count(footer, "\n") + 2
	b.WriteString(clipLines(m.transcript, m.height-used, m.width))
	b.WriteRune('\n')
	b.WriteString(footer)

	return b.String()
}

func (m model) statusLine() string {
	st := m.status.State
	label := stateStyle(st).Render(stateIcon(st) + " " + strings.ToUpper(st.Label()))
	switch st {
	case ttypes.StateLoading:
		label = m.spinner.View() + " " + label
	case ttypes.StatePlaying:
		// pulse the live dot
		dot := " "
		if (m.frame/10)%2 == 0 {
			dot = liveDotStyle.Render("●")
		}
		label = dot + " " + label
	}
	return label
}

func (m model) volumeLine() string {
	if m.status.Muted {
		return fmt.Sprintf("Vol %s %s", m.volume.ViewAs(0), mutedStyle.Render("muted"))
	}
	return fmt.Sprintf("Vol %s %3d%%", m.volume.ViewAs(m.status.Volume), int(m.status.Volume*100+0.5))
}

func (m model) queueLine() string {
	line := fmt.Sprintf("%d queued · %s", m.status.QueueDepth, humanize.Bytes(uint64(max(0, m.stats.QueuedBytes)))) //nolint:gosec
	if m.status.Fetching {
		line += " · fetching " + stateIcon(ttypes.StateLoading)
	}
	return dimStyle.Render(line)
}

func (m model) footer() string {
	var lines []string
	if m.status.LastError != "" {
		lines = append(lines, errorStyle.Render(truncateLine(stateIconError+" "+m.status.LastError, m.width-2)))
	}
	if m.statusMessage != "" {
		style := statusBarMessageStyle
		if m.statusMessageErr {
			style = statusBarErrorStyle
		}
		lines = append(lines, style.Render(" "+m.statusMessage+" "))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}
