package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI message types
type RecordingStartMsg struct{}
type RecordingStopMsg struct{}
type TranscribingMsg struct{}
type RecordingTickMsg struct{ Duration float64 }
type AudioLevelMsg struct{ Level float64 }
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type LogMsg struct{ Text string }
type TranscriptionMsg struct {
	Text     string
	Metrics  string
	NoSpeech bool
}
type ModeLineMsg struct{ Text string }   // engine/model/language info
type DeviceLineMsg struct{ Text string } // microphone device name
type tickMsg time.Time

type tuiState int

const (
	tuiStateIdle tuiState = iota
	tuiStateRecording
	tuiStateTranscribing
)

type tuiModel struct {
	state             tuiState
	frame             int
	recordingDuration float64
	audioLevel        float64
	peakLevel         float64
	noVoice           bool
	width, height     int
	modeLine          string
	deviceLine        string
	lastText          string
	lastMetrics       string
	lastLog           string
	noSpeech          bool
	msgCount          int
}

var (
	tuiProgram   *tea.Program
	tuiMu        sync.Mutex
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once
)

func NewTUIProgram() *tea.Program {
	return tea.NewProgram(tuiModel{}, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case RecordingStartMsg:
		m.state = tuiStateRecording
		m.recordingDuration = 0
		m.audioLevel = 0
		m.peakLevel = 0
		m.noVoice = false

	case RecordingStopMsg:
		m.state = tuiStateIdle
		m.audioLevel = 0
		m.noVoice = false

	case TranscribingMsg:
		m.state = tuiStateTranscribing
		m.audioLevel = 0
		m.noVoice = false

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case AudioLevelMsg:
		if m.state == tuiStateRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
			if msg.Level > m.peakLevel {
				m.peakLevel = msg.Level
			}
		}

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false

	case TranscriptionMsg:
		m.msgCount++
		m.lastText = msg.Text
		m.lastMetrics = msg.Metrics
		m.noSpeech = msg.NoSpeech

	case LogMsg:
		m.lastLog = msg.Text

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

var (
	styleRec    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleBusy   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	styleIdle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleText   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleFaint  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleAccent = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

// levelBar renders the live input level as a fixed-width meter.
func levelBar(level float64, width int) string {
	filled := int(level * 3 * float64(width))
	if filled > width {
		filled = width
	}
	return styleRec.Render(strings.Repeat("█", filled)) +
		styleFaint.Render(strings.Repeat("░", width-filled))
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	switch m.state {
	case tuiStateRecording:
		status := styleRec.Render(fmt.Sprintf("● REC %.1fs", m.recordingDuration))
		lines = append(lines, status, levelBar(m.audioLevel, 30))
		if m.noVoice {
			lines = append(lines, styleWarn.Render("  ⚠ no voice detected"))
		}
	case tuiStateTranscribing:
		dots := strings.Repeat(".", m.frame/5%4)
		lines = append(lines, styleBusy.Render("◌ TRANSCRIBING"+dots))
	default:
		lines = append(lines, styleIdle.Render("○ IDLE"))
	}

	lines = append(lines, "")
	if m.lastText != "" {
		style := styleText
		if m.noSpeech {
			style = styleDim
		}
		for _, l := range wrapText(m.lastText, m.width-2) {
			lines = append(lines, style.Render(l))
		}
		if m.lastMetrics != "" {
			lines = append(lines, styleFaint.Render(m.lastMetrics))
		}
	}
	if m.lastLog != "" {
		lines = append(lines, styleWarn.Render(m.lastLog))
	}

	lines = append(lines, "")
	if m.modeLine != "" {
		lines = append(lines, styleDim.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		lines = append(lines, styleIdle.Render(m.deviceLine))
	}
	lines = append(lines, "")
	lines = append(lines,
		styleAccent.Render("hold")+styleFaint.Render(" to dictate, ")+
			styleAccent.Render("toggle")+styleFaint.Render(" for hands-free"))
	lines = append(lines, styleFaint.Render("voicy "+version))

	return strings.Join(lines, "\n")
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func logToTUI(format string, args ...interface{}) {
	tuiSend(LogMsg{Text: fmt.Sprintf(format, args...)})
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
