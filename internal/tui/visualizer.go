// Package tui renders the terminal visualizer for the render surface: band
// energy bars, a beat flash, and the session status line, polled from the
// session bridge at the frame cadence.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vizbridge/internal/feature"
	"vizbridge/internal/session"
)

const pollInterval = 50 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	beatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#D94C4C")).
			Padding(0, 1).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D94C4C"))
)

// FrameProvider is the slice of the session bridge the visualizer polls.
type FrameProvider interface {
	Status() session.BridgeStatus
	Characteristics() (feature.Set, bool)
	FrequencyData() []byte
	StartCapture() error
	StopCapture() error
}

// VisualizerModel is the Bubble Tea model for the render surface.
type VisualizerModel struct {
	bridge FrameProvider

	width  int
	height int
	ready  bool

	status    session.BridgeStatus
	features  feature.Set
	haveFrame bool
	freq      []byte
}

// NewVisualizerModel creates the model polling the given bridge.
func NewVisualizerModel(bridge FrameProvider) VisualizerModel {
	return VisualizerModel{bridge: bridge}
}

type tickMsg time.Time

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the poll loop.
func (m VisualizerModel) Init() tea.Cmd {
	return pollTick()
}

// Update handles input and poll ticks.
func (m VisualizerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tickMsg:
		m.status = m.bridge.Status()
		m.features, m.haveFrame = m.bridge.Characteristics()
		m.freq = m.bridge.FrequencyData()
		return m, pollTick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))):
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys(" "))):
			// Toggle is a request; the status line flips only when the agent
			// confirms.
			if m.status.IsCapturing {
				m.bridge.StopCapture()
			} else {
				m.bridge.StartCapture()
			}
		}
	}

	return m, nil
}

// View renders the visualizer.
func (m VisualizerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("vizbridge"))
	if m.features.Beat {
		sb.WriteString(" ")
		sb.WriteString(beatStyle.Render("BEAT"))
	}
	sb.WriteString("\n\n")

	barWidth := m.width - 12
	if barWidth < 10 {
		barWidth = 10
	}
	sb.WriteString(renderBar("Bass", m.features.Bass, barWidth))
	sb.WriteString(renderBar("Mid", m.features.Mid, barWidth))
	sb.WriteString(renderBar("Treble", m.features.Treble, barWidth))
	sb.WriteString(renderBar("Volume", m.features.Volume, barWidth))
	sb.WriteString("\n")

	if len(m.freq) > 0 {
		sb.WriteString(renderSpectrum(m.freq, barWidth+8))
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.statusLine())
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("Space: Start/Stop Capture • q: Quit"))

	return sb.String()
}

func (m VisualizerModel) statusLine() string {
	parts := []string{fmt.Sprintf("State: %s", m.status.State)}
	if m.status.PeerVersion != "" {
		parts = append(parts, fmt.Sprintf("Agent: %s", m.status.PeerVersion))
	}
	if m.status.DemoMode {
		parts = append(parts, "demo")
	}
	if !m.haveFrame && m.status.IsCapturing {
		parts = append(parts, "waiting for frames")
	}
	line := infoStyle.Render(strings.Join(parts, " • "))
	if m.status.LastError != "" {
		line += "\n" + errorStyle.Render("Error: "+m.status.LastError)
	}
	return line
}

// renderBar draws one labeled horizontal level bar for a [0,1] value.
func renderBar(label string, v float64, width int) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-7s", label)), barStyle.Render(bar))
}

// renderSpectrum draws a one-line sparkline of the frequency bins, resampled
// to the given width.
func renderSpectrum(bins []byte, width int) string {
	if width <= 0 || len(bins) == 0 {
		return ""
	}
	ramp := []rune(" ▁▂▃▄▅▆▇█")
	var sb strings.Builder
	for i := 0; i < width; i++ {
		lo := i * len(bins) / width
		hi := (i + 1) * len(bins) / width
		if hi <= lo {
			hi = lo + 1
		}
		var peak byte
		for _, b := range bins[lo:hi] {
			if b > peak {
				peak = b
			}
		}
		sb.WriteRune(ramp[int(peak)*(len(ramp)-1)/255])
	}
	return barStyle.Render(sb.String())
}

// StartVisualizer launches the Bubble Tea UI over the given bridge and blocks
// until the user quits.
func StartVisualizer(bridge FrameProvider) error {
	p := tea.NewProgram(
		NewVisualizerModel(bridge),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
