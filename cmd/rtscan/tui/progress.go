// Package tui renders live scan progress with bubbletea.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cutright/rtscan/internal/dicom"
	"github.com/cutright/rtscan/internal/scan"
)

// progressMsg carries one pipeline progress event.
type progressMsg scan.Event

// treeMsg carries the published result tree.
type treeMsg struct{ tree *scan.ResultTree }

// detailMsg carries one parsed plan record.
type detailMsg struct{ details *dicom.PlanDetails }

// completeMsg ends the program after detail parsing.
type completeMsg struct{ fileSets int }

// errorMsg ends the program on run failure.
type errorMsg struct{ err error }

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	elapsedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

var stageTitles = map[scan.Stage]string{
	scan.StageDiscovering:   "Discovering files",
	scan.StageExtracting:    "Reading DICOM headers",
	scan.StageResolving:     "Resolving associations",
	scan.StageDetailParsing: "Parsing plan details",
}

// Model is the progress screen. It quits on its own once the run reports
// completion or failure.
type Model struct {
	root string
	bar  progress.Model

	stage    scan.Stage
	label    string
	fraction float64

	tree     *scan.ResultTree
	parsed   int
	fileSets int
	err      error
	finished bool

	startTime time.Time
	width     int
}

// NewModel returns a progress screen for a scan of root.
func NewModel(root string) *Model {
	return &Model{
		root:      root,
		bar:       progress.New(progress.WithDefaultGradient()),
		startTime: time.Now(),
	}
}

// Tree returns the published tree, nil if the run failed or was quit early.
func (m *Model) Tree() *scan.ResultTree { return m.tree }

// Err returns the run failure, if any.
func (m *Model) Err() error { return m.err }

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.bar.Width = w
		}
	case progressMsg:
		m.stage = msg.Stage
		m.label = msg.Label
		m.fraction = msg.Fraction
	case treeMsg:
		m.tree = msg.tree
	case detailMsg:
		m.parsed++
	case completeMsg:
		m.fileSets = msg.fileSets
		m.finished = true
		return m, tea.Quit
	case errorMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("rtscan: " + m.root))
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render("Scan failed: " + m.err.Error()))
		sb.WriteString("\n")
		return sb.String()
	}

	stage := stageTitles[m.stage]
	if stage == "" {
		stage = "Starting"
	}
	sb.WriteString(stageStyle.Render(stage))
	sb.WriteString("\n")
	sb.WriteString(m.bar.ViewAs(m.fraction))
	sb.WriteString("\n")

	if m.label != "" {
		sb.WriteString(labelStyle.Render(m.label))
		sb.WriteString("\n")
	}
	if m.tree != nil {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%d plans, %d parsed", m.tree.PlanCount(), m.parsed)))
		sb.WriteString("\n")
	}
	if m.finished {
		sb.WriteString(fmt.Sprintf("\nParsing complete: %d file-sets\n", m.fileSets))
	}

	elapsed := time.Since(m.startTime)
	sb.WriteString(elapsedStyle.Render(fmt.Sprintf("Elapsed: %.1fs", elapsed.Seconds())))
	sb.WriteString("\n")
	return sb.String()
}

// Observer bridges scan notifications into the running tea program. Send is
// safe from any goroutine and never calls back into the pipeline.
type Observer struct {
	program *tea.Program
}

// NewObserver wraps a program so a scan run can drive it.
func NewObserver(p *tea.Program) *Observer {
	return &Observer{program: p}
}

func (o *Observer) Progress(ev scan.Event) {
	o.program.Send(progressMsg(ev))
}

func (o *Observer) TreeReady(t *scan.ResultTree) {
	o.program.Send(treeMsg{tree: t})
}

func (o *Observer) PlanDetails(d *dicom.PlanDetails) {
	o.program.Send(detailMsg{details: d})
}

func (o *Observer) ParsingComplete(n int) {
	o.program.Send(completeMsg{fileSets: n})
}

func (o *Observer) RunFailed(err error) {
	o.program.Send(errorMsg{err: err})
}
