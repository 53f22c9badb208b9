package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

// FileView renders the offered file as a one-row table.
func FileView(file session.Descriptor) string {
	fileType := file.Type
	if fileType == "" {
		fileType = "unknown"
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Name", "Size", "Type").
		Row(TruncateString(file.Name, 50), FormatSize(file.Size), TruncateString(fileType, 30)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderFile(file session.Descriptor) {
	fmt.Fprintln(Output, FileView(file))
}

// CodeView is the box an initiator reads the code out of.
func CodeView(code string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:  %s\n\n%s",
		IconSuccess,
		IconCode, CodeStyle.Render(code),
		MutedStyle.Render("Run: tunneldrop receive "+code),
	)
	return CodeBoxStyle.Render(content)
}

func RenderCode(code string) {
	fmt.Fprintln(Output, CodeView(code))
}

// TransferSummary is the closing report of a transfer.
type TransferSummary struct {
	Status   string
	File     string
	Size     int64
	Duration time.Duration
	SavedAs  string
}

// Summarize builds the report for a finished session.
func Summarize(snap session.Snapshot, now time.Time) TransferSummary {
	s := TransferSummary{
		Status:  statusText(snap),
		File:    snap.File.Name,
		Size:    snap.Bytes,
		SavedAs: snap.SavedAs,
	}
	if !snap.StartedAt.IsZero() {
		s.Duration = now.Sub(snap.StartedAt)
	}
	return s
}

func statusText(snap session.Snapshot) string {
	switch snap.State {
	case session.Completed:
		return IconSuccess + " Complete"
	case session.Cancelled:
		return IconCancel + " Cancelled"
	case session.Failed:
		return IconError + " Failed"
	default:
		return snap.State.String()
	}
}

// TransferSummaryView renders s with go-pretty.
func TransferSummaryView(s TransferSummary) string {
	t := pretty.NewWriter()
	t.SetTitle("Transfer Summary")
	t.AppendHeader(pretty.Row{"Metric", "Value"})
	t.AppendRow(pretty.Row{"Status", s.Status})
	t.AppendRow(pretty.Row{"File", TruncateString(s.File, 50)})
	t.AppendRow(pretty.Row{"Size", FormatSize(s.Size)})
	t.AppendRow(pretty.Row{"Duration", FormatTimeDuration(s.Duration)})

	speed := "-"
	if secs := s.Duration.Seconds(); secs > 0 {
		speed = FormatSpeed(float64(s.Size) / secs)
	}
	t.AppendRow(pretty.Row{"Avg Speed", speed})
	if s.SavedAs != "" {
		t.AppendRow(pretty.Row{"Saved To", s.SavedAs})
	}

	style := pretty.StyleRounded
	style.Title.Align = text.AlignCenter
	style.Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.SetStyle(style)
	return t.Render()
}

func RenderTransferSummary(s TransferSummary) {
	fmt.Fprintln(Output, TransferSummaryView(s))
}
