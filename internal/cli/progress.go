package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/memgen-go/internal/models"
	"github.com/raphaelgruber/memgen-go/internal/store"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the progress record
type tickMsg time.Time

// recordUpdateMsg carries the updated progress record
type recordUpdateMsg struct {
	rec *models.ProgressRecord
	err error
}

// watchModel is the bubbletea model for batch progress.
type watchModel struct {
	store    store.Gateway
	service  string
	rec      *models.ProgressRecord
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newWatchModel(gw store.Gateway, service string) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return watchModel{
		store:    gw,
		service:  service,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchRecord()

	case recordUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch progress: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.rec = msg.rec

		// Terminal run states stop the poll loop
		switch m.rec.RunStatus {
		case models.RunCompleted, models.RunCancelled:
			m.done = true
			return m, tea.Quit
		case models.RunFailed:
			m.done = true
			m.err = fmt.Errorf("batch run failed after %d/%d scopes",
				m.rec.ProcessedItems, m.rec.TotalItems)
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.rec == nil {
		return "Loading batch progress...\n"
	}

	var pct float64
	if m.rec.TotalItems > 0 {
		pct = float64(m.rec.ProcessedItems) / float64(m.rec.TotalItems)
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.rec.RunStatus))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d scopes", m.rec.ProcessedItems, m.rec.TotalItems)

	line := fmt.Sprintf("%s %s %s", status, progressBar, counts)
	if m.rec.CurrentItemID != "" {
		line += fmt.Sprintf("  (current: %s)", m.rec.CurrentItemID)
	}
	if m.rec.CancellationRequested {
		line += "  " + m.theme.errorStyle().Render("cancelling")
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching (the run continues)")
	return fmt.Sprintf("%s\n%s\n", line, hint)
}

func (m watchModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nBatch run for %s continues.\nUse 'memgen batch status %s' to check progress.\n",
			m.service, m.service)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ %s\n", m.err))
	}

	if m.rec != nil {
		var output string
		if m.rec.RunStatus == models.RunCancelled {
			output += m.theme.errorStyle().Render("✗ Cancelled") + "\n\n"
		} else {
			output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
		}
		output += fmt.Sprintf("  Scopes processed: %d/%d\n", m.rec.ProcessedItems, m.rec.TotalItems)
		output += fmt.Sprintf("  Succeeded:        %d\n", m.rec.Succeeded)
		output += fmt.Sprintf("  Failed:           %d\n", m.rec.Failed)
		if len(m.rec.Errors) > 0 {
			output += m.theme.errorStyle().Render(fmt.Sprintf("\nErrors (%d):\n", len(m.rec.Errors)))
			for _, e := range m.rec.Errors {
				output += fmt.Sprintf("  • %s: %s\n", e.ItemID, e.Message)
			}
		}
		return output
	}

	return m.theme.completedStyle().Render("✓ Completed\n")
}

// fetchRecord reads the progress record from the gateway.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m watchModel) fetchRecord() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rec, err := m.store.ReadProgress(ctx, m.service)
		return recordUpdateMsg{rec: rec, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func runBatchWatch(cmd *cobra.Command, args []string) error {
	model := newWatchModel(gateway, args[0])
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok {
		// Ctrl+C only stops watching; the run itself continues
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
