package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

// TransferMode represents send or receive
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

// SnapshotMsg carries a session update into the program.
type SnapshotMsg session.Snapshot

// closedMsg reports that the update feed ended.
type closedMsg struct{}

// TransferModel follows one session from its current state to a terminal one.
type TransferModel struct {
	mode     TransferMode
	snap     session.Snapshot
	updates  <-chan session.Snapshot
	onCancel func()

	bar     progress.Model
	spinner spinner.Model

	cancelling bool
	done       bool
}

// NewTransferModel starts from initial and reads further snapshots from
// updates. onCancel runs when the user presses q or ctrl+c.
func NewTransferModel(mode TransferMode, initial session.Snapshot, updates <-chan session.Snapshot, onCancel func()) *TransferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &TransferModel{
		mode:     mode,
		snap:     initial,
		updates:  updates,
		onCancel: onCancel,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
		spinner: s,
		done:    initial.State.Terminal(),
	}
}

// Snapshot is the last state the model has seen.
func (m *TransferModel) Snapshot() session.Snapshot {
	return m.snap
}

func (m *TransferModel) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *TransferModel) listen() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return SnapshotMsg(snap)
	}
}

func (m *TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.cancelling && m.onCancel != nil {
				m.cancelling = true
				m.onCancel()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(30, msg.Width-60))
		return m, nil

	case SnapshotMsg:
		m.snap = session.Snapshot(msg)
		if m.snap.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.listen()

	case closedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		m.bar = model.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m *TransferModel) status() string {
	if m.cancelling {
		return "Cancelling..."
	}
	switch m.snap.State {
	case session.Idle:
		return "Connecting to server..."
	case session.Waiting:
		if m.mode == ModeSend {
			return "Waiting for receiver to join..."
		}
		return "Waiting for your answer..."
	case session.Connecting:
		if m.mode == ModeSend {
			return "Receiver joined, connecting..."
		}
		return "Connecting to peer..."
	case session.Connected:
		return "Connected"
	case session.Transferring:
		if m.mode == ModeSend {
			return "Sending"
		}
		return "Receiving"
	default:
		return Capitalize(m.snap.State.String())
	}
}

func (m *TransferModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	icon := IconSend
	if m.mode == ModeReceive {
		icon = IconReceive
	}
	fmt.Fprintf(&b, "\n%s %s\n\n", icon, BoldStyle.Render(TruncateString(m.fileName(), 40)))
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.status())

	if m.snap.State == session.Transferring {
		fmt.Fprintf(&b, "\n  %s %5.1f%%", m.bar.ViewAs(m.snap.Fraction), m.snap.Fraction*100)
		if m.snap.Rate > 0 {
			b.WriteString(MutedStyle.Render(" " + FormatSpeed(m.snap.Rate)))
		}
		if m.snap.RemainingKnown {
			b.WriteString(MutedStyle.Render(" ETA: " + FormatETA(m.snap.Remaining)))
		}
		b.WriteString(MutedStyle.Render(fmt.Sprintf(" (%s/%s)", FormatSize(m.snap.Bytes), FormatSize(m.snap.File.Size))))
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to cancel") + "\n")
	return b.String()
}

func (m *TransferModel) fileName() string {
	if m.snap.File.Name == "" {
		return "file"
	}
	return m.snap.File.Name
}

// RunTransfer shows the transfer until the session reaches a terminal state
// or ctx ends, and returns the last snapshot seen.
func RunTransfer(ctx context.Context, model *TransferModel, opts ...tea.ProgramOption) (session.Snapshot, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(model, opts...)
	if _, err := p.Run(); err != nil {
		return model.Snapshot(), err
	}
	return model.Snapshot(), nil
}
