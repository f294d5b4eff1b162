// Package ui renders the interactive progress view of stubgen build.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"stubgen/internal/buildpipeline"
)

// cell is one stub on one target.
type cell struct {
	status  buildpipeline.Status
	stage   buildpipeline.Stage
	elapsed time.Duration
}

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model

	targets []string
	stubs   []string
	cells   [][]cell // [target][stub]
	index   map[string][2]int

	failure string
	width   int
	done    bool
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model drawing a targets by stubs
// grid fed from events. The model quits when events is closed.
func NewProgressModel(title string, targets, stubs []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient()),
		targets: targets,
		stubs:   stubs,
		cells:   make([][]cell, len(targets)),
		index:   make(map[string][2]int, len(targets)*len(stubs)),
		width:   80,
	}
	m.bar.Width = m.width - 4
	for ti, target := range targets {
		m.cells[ti] = make([]cell, len(stubs))
		for si, stub := range stubs {
			m.cells[ti][si].status = buildpipeline.StatusQueued
			m.index[buildpipeline.ItemName(target, stub)] = [2]int{ti, si}
		}
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.listen())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) listen() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// apply records ev and returns the progress bar animation.
func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	if ev.Status == buildpipeline.StatusError && ev.Err != nil && m.failure == "" {
		m.failure = ev.Err.Error()
	}
	pos, ok := m.index[ev.Item]
	if !ok {
		return nil
	}
	c := &m.cells[pos[0]][pos[1]]
	c.status = ev.Status
	c.stage = ev.Stage
	if ev.Elapsed > 0 {
		c.elapsed = ev.Elapsed
	}
	return m.bar.SetPercent(m.fraction())
}

func (m *progressModel) fraction() float64 {
	if len(m.index) == 0 {
		return 1
	}
	total := 0.0
	for _, row := range m.cells {
		for _, c := range row {
			total += cellProgress(c)
		}
	}
	return total / float64(len(m.index))
}

func cellProgress(c cell) float64 {
	switch c.status {
	case buildpipeline.StatusDone, buildpipeline.StatusCached, buildpipeline.StatusError:
		return 1
	case buildpipeline.StatusWorking:
		switch c.stage {
		case buildpipeline.StageGenerate:
			return 0.1
		case buildpipeline.StageVerify:
			return 0.3 // the self-checks dominate
		case buildpipeline.StageCache:
			return 0.9
		}
	}
	return 0
}

func (m *progressModel) View() string {
	if len(m.targets) == 0 || len(m.stubs) == 0 {
		return ""
	}
	var b strings.Builder

	header := m.title
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(header))
	b.WriteString("\n\n")

	targetWidth := 0
	for _, t := range m.targets {
		targetWidth = max(targetWidth, runewidth.StringWidth(t))
	}
	colWidth := 0
	for _, s := range m.stubs {
		colWidth = max(colWidth, runewidth.StringWidth(s))
	}
	// Shrink columns to fit; the glyph still fits in one cell.
	if avail := (m.width - targetWidth - 4) / len(m.stubs); avail < colWidth+1 {
		colWidth = max(avail-1, 3)
	}

	b.WriteString("  " + runewidth.FillRight("", targetWidth))
	for _, s := range m.stubs {
		b.WriteString(" " + runewidth.FillRight(truncate(s, colWidth), colWidth))
	}
	b.WriteString("\n")
	for ti, t := range m.targets {
		b.WriteString("  " + runewidth.FillRight(t, targetWidth))
		for _, c := range m.cells[ti] {
			g := glyph(c)
			b.WriteString(" " + styleStatus(c.status).Render(runewidth.FillRight(g, colWidth)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.summary())
	b.WriteString("\n")
	if m.failure != "" {
		b.WriteString(styleStatus(buildpipeline.StatusError).Render(truncate(m.failure, m.width-2)))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) summary() string {
	counts := make(map[buildpipeline.Status]int)
	var busy time.Duration
	for _, row := range m.cells {
		for _, c := range row {
			counts[c.status]++
			busy += c.elapsed
		}
	}
	return fmt.Sprintf("%d done, %d cached, %d running, %d failed, %.0fms of worker time",
		counts[buildpipeline.StatusDone], counts[buildpipeline.StatusCached],
		counts[buildpipeline.StatusWorking], counts[buildpipeline.StatusError],
		float64(busy)/float64(time.Millisecond))
}

func glyph(c cell) string {
	switch c.status {
	case buildpipeline.StatusDone:
		return "ok"
	case buildpipeline.StatusCached:
		return "cached"
	case buildpipeline.StatusError:
		return "FAIL"
	case buildpipeline.StatusWorking:
		return stageLabel(c.stage)
	default:
		return "."
	}
}

func stageLabel(stage buildpipeline.Stage) string {
	switch stage {
	case buildpipeline.StageGenerate:
		return "gen"
	case buildpipeline.StageVerify:
		return "check"
	case buildpipeline.StageCache:
		return "store"
	default:
		return "..."
	}
}

func styleStatus(status buildpipeline.Status) lipgloss.Style {
	switch status {
	case buildpipeline.StatusDone, buildpipeline.StatusCached:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case buildpipeline.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case buildpipeline.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
