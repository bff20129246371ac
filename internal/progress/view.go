package progress

import (
	"fmt"
	"sort"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// View is a small Elm-architecture bubbletea.Model that renders per-group
// status rows for an interactive terminal, subscribed to a Bus. Grounded on
// bramble/app's Model/Update/View split, but scoped to a single redraw
// table rather than a full session viewer.
type View struct {
	bus       *Bus
	unsub     func()
	updates   chan Event
	overall   float64
	done      bool
}

type tickMsg struct{}

// NewView constructs a View over bus. View has no Run method of its own:
// pass it to tea.NewProgram and call the program's Run.
func NewView(bus *Bus) *View {
	return &View{bus: bus, updates: make(chan Event, 256)}
}

func (v *View) Init() (tea.Model, tea.Cmd) {
	v.unsub = v.bus.Subscribe(func(e Event) {
		select {
		case v.updates <- e:
		default:
		}
	})
	return v, v.waitForEvent()
}

func (v *View) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-v.updates
		if !ok {
			return nil
		}
		return e
	}
}

func (v *View) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if m.String() == "ctrl+c" || m.String() == "q" {
			if v.unsub != nil {
				v.unsub()
			}
			return v, tea.Quit
		}
	case Event:
		if m.Type == EventComplete || m.Type == EventInterrupted {
			v.done = true
			v.overall = v.bus.OverallPercent()
			if v.unsub != nil {
				v.unsub()
			}
			return v, tea.Quit
		}
		v.overall = v.bus.OverallPercent()
		return v, v.waitForEvent()
	}
	return v, nil
}

var (
	barFilled = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barEmpty  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failedRow = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneRow   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func (v *View) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "overall %s\n\n", renderBar(v.overall, 30))

	statuses := v.bus.Snapshot()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].GroupID < statuses[j].GroupID })
	for _, s := range statuses {
		row := fmt.Sprintf("%-20s %-16s %s", s.GroupID, s.Stage, s.Message)
		switch {
		case s.Failed:
			b.WriteString(failedRow.Render(row))
		case s.Done:
			b.WriteString(doneRow.Render(row))
		default:
			b.WriteString(row)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	return barFilled.Render(strings.Repeat("#", filled)) + barEmpty.Render(strings.Repeat("-", width-filled))
}
