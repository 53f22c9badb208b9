package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/session"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in))
	}
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "512 B/s", FormatSpeed(512))
	assert.Equal(t, "2.00 KB/s", FormatSpeed(2048))
	assert.Equal(t, "1.50 MB/s", FormatSpeed(1.5*1024*1024))
}

func TestFormatDurations(t *testing.T) {
	assert.Equal(t, "42s", FormatTimeDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatTimeDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatTimeDuration(time.Hour+time.Second))

	assert.Equal(t, "<1s", FormatETA(300*time.Millisecond))
	assert.Equal(t, "59s", FormatETA(59*time.Second))
	assert.Equal(t, "1m30s", FormatETA(90*time.Second))
	assert.Equal(t, "2h5m", FormatETA(2*time.Hour+5*time.Minute))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "ééé...", TruncateString("éééééééé", 6))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Invalid code", Capitalize("invalid code"))
	assert.Equal(t, "Éclair", Capitalize("éclair"))
	assert.Equal(t, "", Capitalize(""))
}

func TestPrintErrorCapitalizes(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	t.Cleanup(func() { Output = old })

	PrintError("room is full")
	assert.Contains(t, buf.String(), "Room is full")
}

func TestViews(t *testing.T) {
	code := CodeView("0451")
	assert.Contains(t, code, "0451")
	assert.Contains(t, code, "tunneldrop receive 0451")

	file := FileView(session.Descriptor{Name: "report.pdf", Size: 2048, Type: "application/pdf"})
	assert.Contains(t, file, "report.pdf")
	assert.Contains(t, file, "2.00 KB")
	assert.Contains(t, file, "application/pdf")

	assert.Contains(t, FileView(session.Descriptor{Name: "blob"}), "unknown")
}

func TestTransferSummary(t *testing.T) {
	start := time.Unix(1000, 0)
	snap := session.Snapshot{
		State:     session.Completed,
		File:      session.Descriptor{Name: "a.bin", Size: 4096},
		Bytes:     4096,
		StartedAt: start,
		SavedAs:   "/tmp/a.bin",
	}

	s := Summarize(snap, start.Add(2*time.Second))
	assert.Equal(t, 2*time.Second, s.Duration)

	view := TransferSummaryView(s)
	for _, want := range []string{"Transfer Summary", "Complete", "a.bin", "4.00 KB", "2s", "2.00 KB/s", "/tmp/a.bin"} {
		assert.Contains(t, view, want)
	}

	failed := Summarize(session.Snapshot{State: session.Failed}, start)
	assert.Zero(t, failed.Duration)
	view = TransferSummaryView(failed)
	assert.Contains(t, view, "Failed")
	assert.NotContains(t, view, "Saved To")
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	t.Cleanup(func() { Output = old })

	sp := NewWaitingSpinner("waiting")
	sp.Start()
	sp.UpdateMessage("still waiting")
	sp.Stop()
	sp.Stop()
	sp.Success("done")
	assert.Contains(t, buf.String(), "done")
}

func TestTransferModelFollowsSnapshots(t *testing.T) {
	updates := make(chan session.Snapshot, 1)
	cancelled := 0
	m := NewTransferModel(ModeReceive, session.Snapshot{State: session.Connecting, File: session.Descriptor{Name: "a.bin", Size: 100}}, updates, func() { cancelled++ })
	require.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "Connecting to peer")

	_, cmd := m.Update(SnapshotMsg{State: session.Transferring, File: session.Descriptor{Name: "a.bin", Size: 100}, Bytes: 50, Fraction: 0.5, Rate: 2048})
	require.NotNil(t, cmd, "keeps listening")
	view := m.View()
	assert.Contains(t, view, "Receiving")
	assert.Contains(t, view, "50.0%")
	assert.Contains(t, view, "2.00 KB/s")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, cancelled)
	assert.Contains(t, m.View(), "Cancelling")

	_, cmd = m.Update(SnapshotMsg{State: session.Cancelled, Err: errors.New("x")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
	assert.Equal(t, session.Cancelled, m.Snapshot().State)
}

func TestTransferModelListensOnFeed(t *testing.T) {
	updates := make(chan session.Snapshot, 1)
	m := NewTransferModel(ModeSend, session.Snapshot{State: session.Waiting}, updates, nil)
	assert.Contains(t, m.View(), "Waiting for receiver")

	updates <- session.Snapshot{State: session.Completed}
	msg := m.listen()()
	assert.Equal(t, SnapshotMsg{State: session.Completed}, msg)

	close(updates)
	assert.Equal(t, closedMsg{}, m.listen()())
}

func TestRunTransferReturnsTerminalSnapshot(t *testing.T) {
	updates := make(chan session.Snapshot, 2)
	updates <- session.Snapshot{State: session.Transferring, Fraction: 0.5}
	updates <- session.Snapshot{State: session.Completed, Bytes: 10}

	m := NewTransferModel(ModeSend, session.Snapshot{State: session.Connecting}, updates, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	snap, err := RunTransfer(ctx, m, tea.WithInput(nil), tea.WithOutput(&out))
	require.NoError(t, err)
	assert.Equal(t, session.Completed, snap.State)
	assert.Equal(t, int64(10), snap.Bytes)
}
